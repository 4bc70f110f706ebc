// Package listener enumerates the data producers an integration can be configured with. A listener
// determines both the engine generation that stores its data and the metric family it produces.
package listener

import (
	"strings"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

type Generation int

const (
	V1 Generation = iota + 1
	V2
)

func (g Generation) String() string {
	switch g {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return "unknown"
}

type Family int

const (
	Backend Family = iota + 1
	Frontend
)

func (f Family) String() string {
	switch f {
	case Backend:
		return "backend"
	case Frontend:
		return "frontend"
	}
	return "unknown"
}

// Kind is a supported listener.
type Kind string

const (
	JMeterV1    Kind = "org.apache.jmeter.visualizers.backend.influxdb.InfluxdbBackendListenerClient"
	JMeterV2    Kind = "org.apache.jmeter.visualizers.backend.influxdb.InfluxdbBackendListenerClient_v2"
	SitespeedV1 Kind = "sitespeed_influxdb_v1"
	SitespeedV2 Kind = "sitespeed_influxdb_v2"
)

type descriptor struct {
	generation Generation
	family     Family
}

var kinds = map[Kind]descriptor{
	JMeterV1:    {generation: V1, family: Backend},
	JMeterV2:    {generation: V2, family: Backend},
	SitespeedV1: {generation: V1, family: Frontend},
	SitespeedV2: {generation: V2, family: Frontend},
}

// Parse returns the Kind named by s.
func Parse(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if _, ok := kinds[k]; !ok {
		return "", &perferrors.ErrInvalidArgument{Name: "listener", Value: s, Message: "unsupported listener"}
	}
	return k, nil
}

func (k Kind) Generation() Generation {
	return kinds[k].generation
}

func (k Kind) Family() Family {
	return kinds[k].family
}

// All returns every supported kind.
func All() []Kind {
	return []Kind{JMeterV1, JMeterV2, SitespeedV1, SitespeedV2}
}
