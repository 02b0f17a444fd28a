package status

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Fallback values reported when the receiver cannot be read.
const (
	DefaultVolume     = -40.0
	UnknownPower      = "UNKNOWN"
	UnknownValue      = "--"
	ConnectionOK      = "Connected"
	ConnectionMissing = "Disconnected"
)

// Volume range of the master volume in dB, and the offset between dB and
// the receiver's 0-98 level scale.
const (
	MinVolumeDB    = -80.0
	MaxVolumeDB    = 18.0
	MaxVolumeLevel = 98
	levelOffset    = 80
)

// Status is a snapshot of the main zone.
type Status struct {
	Power      string  `json:"power"`
	Volume     float64 `json:"volume"`
	Mute       bool    `json:"mute"`
	Input      string  `json:"input"`
	SoundMode  string  `json:"sound_mode"`
	Connection string  `json:"connection"`

	// Valid is true only when the status was read from the receiver.
	Valid bool `json:"valid"`
}

// Default returns the status reported for an unreachable receiver.
func Default() Status {
	return Status{
		Power:      UnknownPower,
		Volume:     DefaultVolume,
		Mute:       false,
		Input:      UnknownValue,
		SoundMode:  UnknownValue,
		Connection: ConnectionMissing,
	}
}

// valueList is an element wrapping one or more <value> children. Only the
// first is used.
type valueList struct {
	Values []string `xml:"value"`
}

func (v *valueList) first() (string, bool) {
	if v == nil || len(v.Values) == 0 {
		return "", false
	}
	return strings.TrimSpace(v.Values[0]), true
}

// statusDocument matches the main zone status document:
//
//	<item>
//	  <Power><value>ON</value></Power>
//	  <InputFuncSelect><value>SAT/CBL</value></InputFuncSelect>
//	  <MasterVolume><value>-40.0</value></MasterVolume>
//	  <Mute><value>off</value></Mute>
//	  <selectSurround><value>STEREO</value></selectSurround>
//	</item>
type statusDocument struct {
	Power           *valueList `xml:"Power"`
	InputFuncSelect *valueList `xml:"InputFuncSelect"`
	MasterVolume    *valueList `xml:"MasterVolume"`
	Mute            *valueList `xml:"Mute"`
	SelectSurround  *valueList `xml:"selectSurround"`
	SurrMode        *valueList `xml:"SurrMode"`
}

// Parse reads a status document. Fields missing from the document keep
// their Default() values. A document that is not XML returns Default()
// and an error wrapping ErrMalformedStatus.
func Parse(body []byte) (Status, error) {
	var doc statusDocument
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}
	if err := expectEnd(dec); err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}

	s := Default()
	if v, ok := doc.Power.first(); ok && v != "" {
		s.Power = v
	}
	if v, ok := doc.MasterVolume.first(); ok {
		s.Volume = parseVolume(v)
	}
	if v, ok := doc.Mute.first(); ok {
		s.Mute = strings.EqualFold(v, "on")
	}
	if v, ok := doc.InputFuncSelect.first(); ok && v != "" {
		s.Input = v
	}
	if v, ok := doc.SelectSurround.first(); ok && v != "" {
		s.SoundMode = v
	} else if v, ok := doc.SurrMode.first(); ok && v != "" {
		s.SoundMode = v
	}
	s.Connection = ConnectionOK
	s.Valid = true
	return s, nil
}

// expectEnd fails if anything but whitespace, comments or processing
// instructions follows the root element.
func expectEnd(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("text after root element: %q", bytes.TrimSpace(t))
			}
		default:
			return errors.New("content after root element")
		}
	}
}

// parseVolume converts "-40.0" to dB. "--" (volume unknown, e.g. in
// standby) and garbage map to DefaultVolume.
func parseVolume(v string) float64 {
	if v == "" || v == UnknownValue {
		return DefaultVolume
	}
	db, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(db) || math.IsInf(db, 0) {
		return DefaultVolume
	}
	return db
}

// LevelFromDB converts a dB volume to the receiver's 0-98 level, as used
// by the volume_set command. Out-of-range values are clamped.
func LevelFromDB(db float64) int {
	db = ClampDB(db)
	return int(math.Round(db)) + levelOffset
}

// DBFromLevel converts a 0-98 level to dB.
func DBFromLevel(level int) float64 {
	level = max(0, min(level, MaxVolumeLevel))
	return float64(level - levelOffset)
}

// ClampDB limits db to the master volume range.
func ClampDB(db float64) float64 {
	if math.IsNaN(db) {
		return DefaultVolume
	}
	return max(MinVolumeDB, min(db, MaxVolumeDB))
}
