// Package control handles commands from the collector and reports device
// state back to it.
package control

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/TheCacophonyProject/frame-streamer/delivery"
	"github.com/TheCacophonyProject/frame-streamer/frame"
	"github.com/TheCacophonyProject/frame-streamer/guard"
	"github.com/TheCacophonyProject/frame-streamer/pacing"
)

const (
	CmdResolution   = "resolution"
	CmdQuality      = "quality"
	CmdFPS          = "fps"
	CmdMode         = "mode"
	CmdBrightness   = "brightness"
	CmdContrast     = "contrast"
	CmdExposure     = "exposure"
	CmdGain         = "gain"
	CmdWhiteBalance = "whitebalance"
	CmdHMirror      = "hmirror"
	CmdVFlip        = "vflip"
	CmdStats        = "stats"
	CmdReboot       = "reboot"
)

// RebootReason is the restart reason recorded for a collector reboot.
const RebootReason = "reboot requested"

// Sender is the text half of the collector connection.
type Sender interface {
	SendText(string) error
}

// Camera is the sensor control surface, implemented by *guard.Guard.
type Camera interface {
	ChangeResolution(id int) error
	Resolution() frame.Resolution
	Health() (guard.HealthState, int)
	SetQuality(int) error
	SetBrightness(int) error
	SetContrast(int) error
	SetExposure(bool) error
	SetGain(bool) error
	SetWhiteBalance(bool) error
	SetHMirror(bool) error
	SetVFlip(bool) error
}

// Pacer is implemented by *pacing.Controller.
type Pacer interface {
	SetTargetRate(int)
	TargetRate() int
	AchievedRate() float64
}

// Streamer is implemented by *delivery.Engine.
type Streamer interface {
	SetMode(delivery.Mode)
	Mode() delivery.Mode
	Stats() delivery.Stats
}

type HealthSender interface {
	SendHealth() error
}

type command struct {
	name  string
	value string
}

// Processor parses collector commands. Commands are queued by Handle,
// which may run in the middle of a frame transfer, and carried out by
// Apply between frames. Reboot is the exception: it is acknowledged at
// once and raises a restart request.
type Processor struct {
	out      Sender
	camera   Camera
	pacer    Pacer
	streamer Streamer
	health   HealthSender

	queue         []command
	restartReason string
}

func NewProcessor(out Sender, camera Camera, pacer Pacer, streamer Streamer, health HealthSender) *Processor {
	return &Processor{
		out:      out,
		camera:   camera,
		pacer:    pacer,
		streamer: streamer,
		health:   health,
	}
}

// Handle takes one inbound text message.
func (p *Processor) Handle(msg []byte) {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		log.Printf("bad message from collector: %v", err)
		return
	}
	if in.Type != "command" {
		return
	}
	if in.Cmd == "" {
		log.Print("command without cmd")
		return
	}

	val := value(in.Val)
	if in.Cmd == CmdReboot {
		p.reboot()
		return
	}
	p.queue = append(p.queue, command{name: in.Cmd, value: val})
}

// pending is the number of queued commands.
func (p *Processor) pending() int {
	return len(p.queue)
}

// Apply runs every queued command in arrival order.
func (p *Processor) Apply() {
	for len(p.queue) > 0 {
		cmds := p.queue
		p.queue = nil
		for _, c := range cmds {
			log.Printf("command %s=%s", c.name, c.value)
			p.run(c)
		}
	}
}

// RestartRequested returns the reason for a pending restart, if any.
func (p *Processor) RestartRequested() (string, bool) {
	return p.restartReason, p.restartReason != ""
}

func (p *Processor) run(c command) {
	var (
		reply string
		err   error
	)
	switch c.name {
	case CmdResolution:
		reply, err = p.resolution(c.value)
	case CmdQuality:
		reply, err = p.intSetting(c.value, p.camera.SetQuality)
	case CmdBrightness:
		reply, err = p.intSetting(c.value, p.camera.SetBrightness)
	case CmdContrast:
		reply, err = p.intSetting(c.value, p.camera.SetContrast)
	case CmdFPS:
		reply, err = p.fps(c.value)
	case CmdMode:
		reply, err = p.mode(c.value)
	case CmdExposure:
		reply, err = p.switchSetting(c.value, p.camera.SetExposure)
	case CmdGain:
		reply, err = p.switchSetting(c.value, p.camera.SetGain)
	case CmdWhiteBalance:
		reply, err = p.switchSetting(c.value, p.camera.SetWhiteBalance)
	case CmdHMirror:
		reply, err = p.switchSetting(c.value, p.camera.SetHMirror)
	case CmdVFlip:
		reply, err = p.switchSetting(c.value, p.camera.SetVFlip)
	case CmdStats:
		err = p.health.SendHealth()
	default:
		err = fmt.Errorf("unknown command")
	}

	if err != nil {
		log.Printf("command %s failed: %v", c.name, err)
		p.respond(c.name, "error", err.Error())
		return
	}
	p.respond(c.name, "ok", reply)
}

func (p *Processor) resolution(v string) (string, error) {
	id, err := parseInt(v)
	if err != nil {
		return "", err
	}
	if err := p.camera.ChangeResolution(id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d (%s)", id, p.camera.Resolution()), nil
}

func (p *Processor) intSetting(v string, set func(int) error) (string, error) {
	n, err := parseInt(v)
	if err != nil {
		return "", err
	}
	if err := set(n); err != nil {
		return "", err
	}
	return v, nil
}

func (p *Processor) switchSetting(v string, set func(bool) error) (string, error) {
	on := parseSwitch(v)
	if err := set(on); err != nil {
		return "", err
	}
	return onOff(on), nil
}

func (p *Processor) fps(v string) (string, error) {
	n, err := parseInt(v)
	if err != nil {
		return "", err
	}
	if n < pacing.MinRate || n > pacing.MaxRate {
		return "", fmt.Errorf("fps %d not in [%d, %d]", n, pacing.MinRate, pacing.MaxRate)
	}
	p.pacer.SetTargetRate(n)
	return fmt.Sprintf("%d (actual: %.1f)", n, p.pacer.AchievedRate()), nil
}

func (p *Processor) mode(v string) (string, error) {
	m, err := delivery.ParseMode(v)
	if err != nil {
		return "", err
	}
	p.streamer.SetMode(m)
	return p.streamer.Mode().String(), nil
}

func (p *Processor) reboot() {
	log.Print("reboot requested by collector")
	p.respond(CmdReboot, "ok", "restarting")
	p.send(status{Type: "status", Msg: "device restarting"})
	p.restartReason = RebootReason
}

func (p *Processor) respond(cmd, st, val string) {
	p.send(response{Type: "response", Cmd: cmd, Status: st, Value: val})
}

func (p *Processor) send(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("could not encode message: %v", err)
		return
	}
	if err := p.out.SendText(string(b)); err != nil {
		log.Printf("could not send %s: %v", b, err)
	}
}
