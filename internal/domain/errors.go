package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrPipelineStarted    = errors.New("pipeline already started")
	ErrPipelineStopped    = errors.New("pipeline stopped")
	ErrUnknownRuleKind    = errors.New("unknown rule kind")
	ErrUnknownChannelType = errors.New("unknown notification channel type")
	ErrAdapterRunning     = errors.New("adapter already running")
)
