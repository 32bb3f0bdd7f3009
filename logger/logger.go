package logger

import (
	"go.uber.org/zap"
)

var Log *zap.SugaredLogger

// Init sets up the global sugared logger. Production encoding by
// default; debug switches to human-readable development output.
func Init(debug bool) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = l.Sugar()
}
