// Package gpx encodes solved paths as GPX 1.1 tracks.
package gpx

import (
	"fmt"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/tkrajina/gpxgo/gpx"
)

const (
	gpxVersion  = "1.1"
	contentType = "application/gpx+xml"
	trackName   = "Robot mission path"
)

// Exporter writes a path as one track with one segment, one track point per
// path position in order.
type Exporter struct {
	creator string
}

var _ domain.Exporter = (*Exporter)(nil)

// NewExporter creates an exporter. creator is written to the GPX header.
func NewExporter(creator string) *Exporter {
	return &Exporter{creator: creator}
}

func (e *Exporter) Export(path domain.PathResult) ([]byte, error) {
	if len(path.Points) == 0 {
		return nil, domain.ErrEmptyPath
	}

	var segment gpx.GPXTrackSegment
	for _, p := range path.Points {
		segment.Points = append(segment.Points, gpx.GPXPoint{
			Point: gpx.Point{Latitude: p.Lat, Longitude: p.Lng},
		})
	}

	doc := &gpx.GPX{
		Version: gpxVersion,
		Creator: e.creator,
		Tracks: []gpx.GPXTrack{{
			Name:        trackName,
			Description: path.Summary,
			Segments:    []gpx.GPXTrackSegment{segment},
		}},
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: gpxVersion, Indent: true})
	if err != nil {
		return nil, fmt.Errorf("encode gpx: %w", err)
	}
	return data, nil
}

func (e *Exporter) ContentType() string {
	return contentType
}

// Decode reads the track points of the first track back into positions.
func Decode(data []byte) ([]domain.Position, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse gpx: %w", err)
	}

	var out []domain.Position
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				out = append(out, domain.Position{Lat: p.Latitude, Lng: p.Longitude})
			}
		}
	}
	return out, nil
}
