package main

import (
	"time"

	"github.com/sdeoras/cotton/diagnosis"
)

// ClassifyResult is one line of batch output.
type ClassifyResult struct {
	Filename    string                  `json:"filename"`
	Label       string                  `json:"label"`
	Conf        float64                 `json:"conf"`
	FileSize    uint64                  `json:"filesize"`
	FileIOTime  time.Duration           `json:"fileiotime"`
	ComputeTime time.Duration           `json:"computetime"`
	Labels      []diagnosis.LabelResult `json:"labels"`
}
