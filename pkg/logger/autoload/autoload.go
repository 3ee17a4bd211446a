// Package autoload initializes the global logger from LOG_* variables on import.
package autoload

import (
	configx "github.com/tanpawarit/chative-order-relay/pkg/config"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
