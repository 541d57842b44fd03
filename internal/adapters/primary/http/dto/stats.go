package dto

import (
	"github.com/google/uuid"

	"spatialization-module/internal/core/domain"
)

type RasterStatsRequest struct {
	Path string `json:"path" binding:"required"`
}

type BandSummaryResponse struct {
	Band        int     `json:"band"`
	Sum         float64 `json:"sum"`
	ValidPixels int     `json:"valid_pixels"`
	Area        float64 `json:"area"`
}

type RasterStatsResponse struct {
	Path  string                `json:"path"`
	Bands []BandSummaryResponse `json:"bands"`
}

func ToRasterStatsResponse(path string, sums []domain.RasterSummary) RasterStatsResponse {
	resp := RasterStatsResponse{Path: path, Bands: make([]BandSummaryResponse, 0, len(sums))}
	for _, s := range sums {
		resp.Bands = append(resp.Bands, BandSummaryResponse{
			Band:        s.Band,
			Sum:         s.Sum,
			ValidPixels: s.ValidPixels,
			Area:        s.Area,
		})
	}
	return resp
}

type NodeSummaryResponse struct {
	RegionID    string   `json:"region_id"`
	Level       int      `json:"level"`
	Path        string   `json:"path"`
	Sum         float64  `json:"sum"`
	ValidPixels int      `json:"valid_pixels"`
	Area        float64  `json:"area"`
	ChildrenSum *float64 `json:"children_sum,omitempty"`
}

type RunStatsResponse struct {
	RunID   uuid.UUID             `json:"run_id"`
	Asset   string                `json:"asset"`
	Regions []NodeSummaryResponse `json:"regions"`
	Errors  []string              `json:"errors,omitempty"`
}

func ToRunStatsResponse(id uuid.UUID, asset string, sums []domain.NodeSummary, err error) RunStatsResponse {
	resp := RunStatsResponse{RunID: id, Asset: asset, Regions: make([]NodeSummaryResponse, 0, len(sums))}
	for _, s := range sums {
		resp.Regions = append(resp.Regions, NodeSummaryResponse{
			RegionID:    s.RegionID,
			Level:       s.Level,
			Path:        s.Summary.Path,
			Sum:         s.Summary.Sum,
			ValidPixels: s.Summary.ValidPixels,
			Area:        s.Summary.Area,
			ChildrenSum: s.ChildrenSum,
		})
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			resp.Errors = append(resp.Errors, e.Error())
		}
	} else if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	return resp
}
