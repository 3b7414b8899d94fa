//go:build windows || plan9 || js || wasip1

package logging

import (
	"errors"

	"github.com/sirupsen/logrus"
)

func addSyslogHook(*logrus.Logger) error {
	return errors.New("syslog is not available on this platform")
}
