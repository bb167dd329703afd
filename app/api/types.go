package api

import (
	"github.com/lmzhao/zhisieve/app/engine"
	"github.com/lmzhao/zhisieve/app/stats"
)

type Handler struct {
	engine  *engine.Engine
	tracker *stats.Tracker
}
