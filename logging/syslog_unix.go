//go:build !windows && !plan9 && !js && !wasip1

package logging

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func addSyslogHook(l *logrus.Logger) error {
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, Tag)
	if err != nil {
		return err
	}
	l.AddHook(hook)
	return nil
}
