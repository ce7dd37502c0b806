package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// schedule is the external scheduler's input: an ordered list of steps, each
// naming the groups active in parallel until all of them report done.
type schedule struct {
	Steps []step `yaml:"steps"`
}

type step struct {
	Groups []string `yaml:"groups"`
}

func loadSchedule(r io.Reader) (*schedule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s schedule
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decoding schedule")
	}
	for i, st := range s.Steps {
		if len(st.Groups) == 0 {
			return nil, errors.Errorf("schedule step %d names no groups", i)
		}
	}
	return &s, nil
}

func loadScheduleFile(path string) (*schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening schedule")
	}
	defer f.Close()
	return loadSchedule(f)
}
