package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

type RunFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

// RenderFlags select a one-off batch.
type RenderFlags struct {
	Mode          string
	Publisher     uint64
	Items         bool
	Vehicles      bool
	ItemAngles    []float64
	VehicleAngles []float64
	Delay         time.Duration
	// Remote instance; when set the batch is started there instead.
	APIUrl     string
	APITimeout time.Duration
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Watch      bool
	Interval   time.Duration
}

type SkipFlags struct {
	Name       string
	APIUrl     string
	APITimeout time.Duration
}
