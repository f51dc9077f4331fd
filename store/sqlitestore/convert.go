package sqlitestore

import (
	"encoding/json"

	"github.com/watchtower-nvr/core/store"
)

func toGormIdentity(id *store.Identity) (*gormIdentity, error) {
	tagsJSON, err := json.Marshal(id.Tags)
	if err != nil {
		return nil, err
	}
	return &gormIdentity{
		ID:             id.ID,
		Name:           id.Name,
		Classification: string(id.Classification),
		Embedding:      id.Embedding,
		Thumbnail:      id.Thumbnail,
		Tags:           string(tagsJSON),
		Notes:          id.Notes,
		FirstSeenAt:    id.FirstSeenAt,
		LastSeenAt:     id.LastSeenAt,
		SightingCount:  id.SightingCount,
		IsActive:       id.IsActive,
		CreatedAt:      id.CreatedAt,
		UpdatedAt:      id.UpdatedAt,
	}, nil
}

func fromGormIdentity(g *gormIdentity) (*store.Identity, error) {
	var tags []string
	if g.Tags != "" {
		if err := json.Unmarshal([]byte(g.Tags), &tags); err != nil {
			return nil, err
		}
	}
	return &store.Identity{
		ID:             g.ID,
		Name:           g.Name,
		Classification: store.Classification(g.Classification),
		Embedding:      g.Embedding,
		Thumbnail:      g.Thumbnail,
		Tags:           tags,
		Notes:          g.Notes,
		FirstSeenAt:    g.FirstSeenAt,
		LastSeenAt:     g.LastSeenAt,
		SightingCount:  g.SightingCount,
		IsActive:       g.IsActive,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}, nil
}

func toGormCamera(c *store.Camera) *gormCamera {
	return &gormCamera{
		ID:                   c.ID,
		Name:                 c.Name,
		Kind:                 string(c.Kind),
		ConnectionDescriptor: c.ConnectionDescriptor,
		LocationLat:          c.LocationLat,
		LocationLon:          c.LocationLon,
		Status:               string(c.Status),
		ResolutionW:          c.ResolutionW,
		ResolutionH:          c.ResolutionH,
		FPS:                  c.FPS,
		IsEnabled:            c.IsEnabled,
		LastFrameAt:          c.LastFrameAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

func fromGormCamera(g *gormCamera) *store.Camera {
	return &store.Camera{
		ID:                   g.ID,
		Name:                 g.Name,
		Kind:                 store.CameraKind(g.Kind),
		ConnectionDescriptor: g.ConnectionDescriptor,
		LocationLat:          g.LocationLat,
		LocationLon:          g.LocationLon,
		Status:               store.CameraStatus(g.Status),
		ResolutionW:          g.ResolutionW,
		ResolutionH:          g.ResolutionH,
		FPS:                  g.FPS,
		IsEnabled:            g.IsEnabled,
		LastFrameAt:          g.LastFrameAt,
		CreatedAt:            g.CreatedAt,
		UpdatedAt:            g.UpdatedAt,
	}
}

func toGormSighting(s *store.Sighting) *gormSighting {
	return &gormSighting{
		ID:                s.ID,
		IdentityID:        s.IdentityID,
		CameraID:          s.CameraID,
		SnapshotRef:       s.SnapshotRef,
		BBoxX:             s.BBox.X,
		BBoxY:             s.BBox.Y,
		BBoxW:             s.BBox.W,
		BBoxH:             s.BBox.H,
		Confidence:        s.Confidence,
		LocationLat:       s.LocationLat,
		LocationLon:       s.LocationLon,
		RecordingID:       s.RecordingID,
		RecordingOffsetMS: s.RecordingOffsetMS,
		DetectedAt:        s.DetectedAt,
	}
}

func fromGormSighting(g *gormSighting) *store.Sighting {
	return &store.Sighting{
		ID:         g.ID,
		IdentityID: g.IdentityID,
		CameraID:   g.CameraID,
		Confidence: g.Confidence,
		BBox: store.BoundingBox{
			X: g.BBoxX, Y: g.BBoxY, W: g.BBoxW, H: g.BBoxH,
		},
		SnapshotRef:       g.SnapshotRef,
		LocationLat:       g.LocationLat,
		LocationLon:       g.LocationLon,
		RecordingID:       g.RecordingID,
		RecordingOffsetMS: g.RecordingOffsetMS,
		DetectedAt:        g.DetectedAt,
	}
}

func toGormRecording(r *store.Recording) *gormRecording {
	return &gormRecording{
		ID:            r.ID,
		CameraID:      r.CameraID,
		FileRef:       r.FileRef,
		SizeBytes:     r.SizeBytes,
		DurationMS:    r.DurationMS,
		FrameCount:    r.FrameCount,
		Status:        string(r.Status),
		HasDetections: r.HasDetections,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		CreatedAt:     r.CreatedAt,
	}
}

func fromGormRecording(g *gormRecording) *store.Recording {
	return &store.Recording{
		ID:            g.ID,
		CameraID:      g.CameraID,
		FileRef:       g.FileRef,
		SizeBytes:     g.SizeBytes,
		DurationMS:    g.DurationMS,
		FrameCount:    g.FrameCount,
		Status:        store.RecordingStatus(g.Status),
		HasDetections: g.HasDetections,
		StartedAt:     g.StartedAt,
		EndedAt:       g.EndedAt,
		CreatedAt:     g.CreatedAt,
	}
}
