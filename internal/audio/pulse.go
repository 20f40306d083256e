// Package audio adapts system audio servers to the coordinator backend port.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
)

// PulseAudio subscription facilities and event types.
const (
	facilitySink   = 0x00
	facilitySource = 0x01
	facilityServer = 0x07
	facilityMask   = 0x0F

	eventNew    = 0x00
	eventChange = 0x10
	eventRemove = 0x20
	eventMask   = 0x30

	subscriptionMask = 0x0001 | 0x0002 | 0x0080 // sink | source | server

	monitorSuffix = ".monitor"
)

// Pulse drives default sinks and sources on a PulseAudio compatible server,
// including PipeWire's pulse shim.
type Pulse struct {
	server  string
	appName string
	logger  *slog.Logger
}

// NewPulse returns a backend for server. An empty server uses the client default
// ($PULSE_SERVER, then the user runtime socket).
func NewPulse(server string, appName string, logger *slog.Logger) *Pulse {
	if appName == "" {
		appName = "audiomon"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pulse{server: server, appName: appName, logger: logger}
}

func (p *Pulse) Name() string { return "pulse" }

func (p *Pulse) connect() (*pulse.Client, error) {
	opts := []pulse.ClientOption{
		pulse.ClientApplicationName(p.appName),
		pulse.ClientApplicationIconName("audio-card"),
	}
	if p.server != "" {
		opts = append(opts, pulse.ClientServerString(p.server))
	}
	client, err := pulse.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// Enumerate lists sinks as outputs and sources as inputs, in server index order.
func (p *Pulse) Enumerate(ctx context.Context) ([]device.AudioDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := p.connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var sinks pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &sinks); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	var sources pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sources); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	var info pulseproto.GetServerInfoReply
	if err := client.RawRequest(&pulseproto.GetServerInfo{}, &info); err != nil {
		p.logger.Debug("read pulse server info failed", "error", err.Error())
	}

	return buildDevices(sinks, sources, info.DefaultSinkName, info.DefaultSourceName), nil
}

// CurrentDefault reads the server's default sink or source name.
func (p *Pulse) CurrentDefault(ctx context.Context, class device.Class) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	client, err := p.connect()
	if err != nil {
		return "", false, err
	}
	defer client.Close()

	var info pulseproto.GetServerInfoReply
	if err := client.RawRequest(&pulseproto.GetServerInfo{}, &info); err != nil {
		return "", false, fmt.Errorf("read server info: %w", err)
	}

	var name string
	switch class {
	case device.ClassOutput:
		name = info.DefaultSinkName
	case device.ClassInput:
		name = info.DefaultSourceName
	default:
		return "", false, fmt.Errorf("no default for class %s", class)
	}
	return name, name != "", nil
}

// SetDefault makes id the default sink or source.
func (p *Pulse) SetDefault(ctx context.Context, class device.Class, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := p.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	switch class {
	case device.ClassOutput:
		if err := client.RawRequest(&pulseproto.SetDefaultSink{SinkName: id}, nil); err != nil {
			return fmt.Errorf("set default sink %q: %w", id, err)
		}
	case device.ClassInput:
		if err := client.RawRequest(&pulseproto.SetDefaultSource{SourceName: id}, nil); err != nil {
			return fmt.Errorf("set default source %q: %w", id, err)
		}
	default:
		return fmt.Errorf("cannot set default for class %s", class)
	}
	return nil
}

// Subscribe opens a dedicated protocol connection that forwards sink, source
// and server events until the subscription is closed or ctx is done.
func (p *Pulse) Subscribe(ctx context.Context, onChange func(coordinator.Change)) (coordinator.Subscription, error) {
	client, conn, err := pulseproto.Connect(p.server)
	if err != nil {
		return nil, fmt.Errorf("connect to pulse server: %w", err)
	}

	client.Callback = eventHandler(onChange)
	props := pulseproto.PropList{
		"application.name":      pulseproto.PropListString(p.appName),
		"application.icon_name": pulseproto.PropListString("audio-card"),
	}
	if err := client.Request(&pulseproto.SetClientName{Props: props}, &pulseproto.SetClientNameReply{}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("register pulse client: %w", err)
	}
	if err := client.Request(&pulseproto.Subscribe{Mask: subscriptionMask}, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe to pulse events: %w", err)
	}

	sub := &pulseSubscription{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	p.logger.Debug("subscribed to pulse events", "server", p.server)
	return sub, nil
}

// eventHandler adapts onChange to the protocol client's callback. Replies,
// stream packets and connection state messages are ignored.
func eventHandler(onChange func(coordinator.Change)) func(any) {
	return func(msg any) {
		ev, ok := msg.(*pulseproto.SubscribeEvent)
		if !ok {
			return
		}
		if change, ok := classifyEvent(uint32(ev.Event)); ok {
			onChange(change)
		}
	}
}

type pulseSubscription struct {
	conn net.Conn
	once sync.Once
	done chan struct{}
	err  error
}

func (s *pulseSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.err = err
		}
	})
	return s.err
}

// classifyEvent maps a raw subscription event to a coordinator change.
// Sink and source property changes (volume, mute) are ignored; the poll
// fallback picks up port availability changes.
func classifyEvent(event uint32) (coordinator.Change, bool) {
	facility := event & facilityMask
	kind := event & eventMask

	switch facility {
	case facilitySink, facilitySource:
		if kind == eventNew || kind == eventRemove {
			return coordinator.ChangeDeviceList, true
		}
	case facilityServer:
		if kind == eventChange {
			return coordinator.ChangeDefault, true
		}
	}
	return 0, false
}

// buildDevices flattens sink and source replies into device snapshots. Monitor
// sources and devices whose active port is unplugged are skipped.
func buildDevices(
	sinks pulseproto.GetSinkInfoListReply,
	sources pulseproto.GetSourceInfoListReply,
	defaultSink string,
	defaultSource string,
) []device.AudioDevice {
	devices := make([]device.AudioDevice, 0, len(sinks)+len(sources))
	for _, sink := range sinks {
		if sink == nil || !sinkAvailable(sink) {
			continue
		}
		devices = append(devices, device.AudioDevice{
			ID:      sink.SinkName,
			Name:    displayName(sink.Device, sink.SinkName),
			Class:   device.ClassOutput,
			Default: sink.SinkName == defaultSink,
		})
	}
	for _, source := range sources {
		if source == nil || strings.HasSuffix(source.SourceName, monitorSuffix) || !sourceAvailable(source) {
			continue
		}
		devices = append(devices, device.AudioDevice{
			ID:      source.SourceName,
			Name:    displayName(source.Device, source.SourceName),
			Class:   device.ClassInput,
			Default: source.SourceName == defaultSource,
		})
	}
	return devices
}

func displayName(description, name string) string {
	if strings.TrimSpace(description) != "" {
		return description
	}
	return name
}

// sinkAvailable maps Pulse sink port availability to a simple boolean.
func sinkAvailable(sink *pulseproto.GetSinkInfoReply) bool {
	if sink == nil {
		return false
	}
	for _, port := range sink.Ports {
		if port.Name != sink.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available != 1
	}
	return true
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		return port.Available != 1
	}
	return true
}
