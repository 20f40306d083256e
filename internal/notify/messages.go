package notify

import (
	"fmt"
	"os"
	"strings"

	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/priority"
)

type locale string

const (
	localeEnglish locale = "en"
)

// message is one rendered notification. Messages sharing a topic replace each
// other where the backend supports it.
type message struct {
	topic string
	title string
	body  string
}

type messages struct {
	connected     string
	disconnected  string
	switched      string
	switchFailed  string
	backendFailed string
	configFailed  string
	reasonInitial string
	reasonHigher  string
	reasonMissing string
	reasonManual  string
	unknownReason string
	classNames    map[device.Class]string
}

func messagesFromEnv() messages {
	return localizedMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func localizedMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			connected:     "Audio device connected",
			disconnected:  "Audio device disconnected",
			switched:      "%s switched",
			switchFailed:  "%s switch failed",
			backendFailed: "Audio backend unavailable",
			configFailed:  "Configuration rejected",
			reasonInitial: "selected",
			reasonHigher:  "higher priority device available",
			reasonMissing: "previous device unavailable",
			reasonManual:  "requested manually",
			unknownReason: "priority changed",
			classNames: map[device.Class]string{
				device.ClassOutput: "Output",
				device.ClassInput:  "Input",
			},
		}
	}
}

func (m messages) className(class device.Class) string {
	if name, ok := m.classNames[class]; ok {
		return name
	}
	return class.String()
}

func (m messages) reason(r priority.Reason) string {
	switch r {
	case priority.ReasonInitial:
		return m.reasonInitial
	case priority.ReasonHigherPriority:
		return m.reasonHigher
	case priority.ReasonPreviousUnavailable:
		return m.reasonMissing
	case priority.ReasonManual:
		return m.reasonManual
	default:
		return m.unknownReason
	}
}

func (m messages) deviceConnected(d device.AudioDevice) message {
	return message{topic: "device", title: m.connected, body: fmt.Sprintf("%s (%s)", d.Name, m.className(d.Class))}
}

func (m messages) deviceDisconnected(d device.AudioDevice) message {
	return message{topic: "device", title: m.disconnected, body: fmt.Sprintf("%s (%s)", d.Name, m.className(d.Class))}
}

func (m messages) switchedTo(d priority.Decision) message {
	return message{
		topic: "switch:" + d.Class.String(),
		title: fmt.Sprintf(m.switched, m.className(d.Class)),
		body:  fmt.Sprintf("%s: %s", d.Device.Name, m.reason(d.Reason)),
	}
}

func (m messages) switchFailedTo(d priority.Decision, err error) message {
	return message{
		topic: "switch:" + d.Class.String(),
		title: fmt.Sprintf(m.switchFailed, m.className(d.Class)),
		body:  fmt.Sprintf("%s: %v", d.Device.Name, err),
	}
}

func (m messages) backendUnavailable(err error) message {
	return message{topic: "backend", title: m.backendFailed, body: err.Error()}
}

func (m messages) configRejected(err error) message {
	return message{topic: "config", title: m.configFailed, body: err.Error()}
}
