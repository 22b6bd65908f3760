package main

import (
	"encoding/json"
	"os"
)

// RunSummary stores binclust run summary information.
type RunSummary struct {
	// Version stores binclust version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// BestK is the selected number of clusters (0 for the exactK=1 shortcut).
	BestK int `json:"bestK,omitempty"`
	// BestScore is the silhouette score of the selected clustering.
	BestScore float64 `json:"bestScore,omitempty"`
	// Scores maps every scored candidate K to its silhouette score.
	Scores map[int]float64 `json:"scores,omitempty"`
}

// writeJSONSummary outputs the summary in json format.
func writeJSONSummary(summary *RunSummary, fn string) {
	j, err := json.Marshal(summary)
	if err != nil {
		log.Error(err)
		return
	}
	log.Debug(string(j))
	f, err := os.Create(fn)
	if err != nil {
		log.Error("Error creating json output file:", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(j); err != nil {
		log.Error("Error writing json output file:", err)
	}
}
