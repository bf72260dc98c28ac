package handlers

import (
	"sync"

	"github.com/d4l-data4life/go-image-studio/pkg/config"

	"github.com/d4l-data4life/go-svc/pkg/instrumented"
)

var once sync.Once

var instance *instrumented.HandlerFactory

// GetHandlerFactory returns the instrumented handler factory shared by all handlers
func GetHandlerFactory() *instrumented.HandlerFactory {
	once.Do(func() {
		instance = instrumented.NewHandlerFactory("d4l", config.DefaultInstrumentInitOptions, config.DefaultInstrumentOptions)
	})
	return instance
}
