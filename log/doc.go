// Package log is the leveled logger shared by the agents, graphs and tracking
// backends.
//
// The package-level helpers (Debug, Info, Warn, Error) write through a
// kataras/golog logger prefixed with "[kbagents] ". Programs call SetLogLevel
// with the level parsed from LOG_LEVEL; tests usually install a NoOpLogger or
// a golog logger pointed at a buffer.
//
//	level, err := log.ParseLevel(cfg.LogLevel)
//	if err != nil {
//		return err
//	}
//	log.SetLogLevel(level)
//	log.Info("[rag] indexed %d chunks", n)
package log
