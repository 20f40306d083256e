package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// beeepSender delivers through the platform notifier chosen by beeep.
type beeepSender struct {
	appName string
	send    func(title, message string, icon any) error
}

func newBeeepSender(appName string) *beeepSender {
	return &beeepSender{appName: appName, send: beeep.Notify}
}

func (b *beeepSender) Send(_ context.Context, msg message) error {
	// beeep reads the application name from a package global.
	previous := beeep.AppName
	beeep.AppName = b.appName
	defer func() { beeep.AppName = previous }()

	return b.send(msg.title, msg.body, "")
}
