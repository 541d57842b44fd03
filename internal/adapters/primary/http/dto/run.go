package dto

import (
	"time"

	"github.com/google/uuid"

	"spatialization-module/internal/core/domain"
)

type BoundarySpecRequest struct {
	Kind            string `json:"kind"`
	Path            string `json:"path"`
	Table           string `json:"table"`
	GeometryColumn  string `json:"geometry_column"`
	OrderBy         string `json:"order_by"`
	SubregionColumn string `json:"subregion_column" binding:"required"`
	ParentColumn    string `json:"parent_column"`
	CRS             string `json:"crs"`
}

type AssetSpecRequest struct {
	Name string `json:"name" binding:"required"`
	Year int    `json:"year"`
	Path string `json:"path" binding:"required"`
	CRS  string `json:"crs"`
}

type RunOptionsRequest struct {
	Overwrite           *bool    `json:"overwrite"`
	ConcurrencyMode     *string  `json:"concurrency_mode"`
	WorkerCount         *int     `json:"worker_count"`
	TolerancePercentage *float64 `json:"tolerance_percentage"`
}

type SubmitRunRequest struct {
	Units      []string              `json:"units" binding:"required,min=1"`
	Levels     []BoundarySpecRequest `json:"levels" binding:"required,min=1,dive"`
	Assets     []AssetSpecRequest    `json:"assets" binding:"required,min=1,dive"`
	Mode       string                `json:"mode"`
	FlatSubdir string                `json:"flat_subdir"`
	Options    *RunOptionsRequest    `json:"options"`
}

// ToPipelineRequest fills everything the request leaves out from the server
// defaults. An empty mode means tree.
func ToPipelineRequest(req *SubmitRunRequest, defaults domain.RunOptions, flatSubdir string) domain.PipelineRequest {
	out := domain.PipelineRequest{
		Units:      req.Units,
		Mode:       domain.JobMode(req.Mode),
		FlatSubdir: req.FlatSubdir,
		Options:    defaults,
	}
	if out.Mode == "" {
		out.Mode = domain.JobModeTree
	}
	if out.FlatSubdir == "" {
		out.FlatSubdir = flatSubdir
	}

	for _, l := range req.Levels {
		out.Levels = append(out.Levels, domain.BoundarySpec{
			Kind:            l.Kind,
			Path:            l.Path,
			Table:           l.Table,
			GeometryColumn:  l.GeometryColumn,
			OrderBy:         l.OrderBy,
			SubregionColumn: l.SubregionColumn,
			ParentColumn:    l.ParentColumn,
			CRS:             l.CRS,
		})
	}
	for _, a := range req.Assets {
		out.Assets = append(out.Assets, domain.AssetSpec{Name: a.Name, Year: a.Year, Path: a.Path, CRS: a.CRS})
	}

	if o := req.Options; o != nil {
		if o.Overwrite != nil {
			out.Options.Overwrite = *o.Overwrite
		}
		if o.ConcurrencyMode != nil {
			out.Options.ConcurrencyMode = domain.ConcurrencyMode(*o.ConcurrencyMode)
		}
		if o.WorkerCount != nil {
			out.Options.WorkerCount = *o.WorkerCount
		}
		if o.TolerancePercentage != nil {
			out.Options.TolerancePercentage = o.TolerancePercentage
		}
	}
	return out
}

type RunResponse struct {
	ID          uuid.UUID          `json:"id"`
	Status      string             `json:"status"`
	SubmittedAt string             `json:"submitted_at"`
	Error       string             `json:"error,omitempty"`
	Report      *RunReportResponse `json:"report,omitempty"`
}

type ListRunsResponse struct {
	Items []RunResponse `json:"items"`
	Total int           `json:"total"`
}

type RunReportResponse struct {
	ID         uuid.UUID             `json:"id"`
	Mode       string                `json:"mode"`
	StartedAt  string                `json:"started_at"`
	FinishedAt string                `json:"finished_at"`
	Counts     map[string]int        `json:"counts"`
	Units      []UnitOutcomeResponse `json:"units"`
	Regions    []RegionNodeResponse  `json:"regions,omitempty"`
}

type UnitOutcomeResponse struct {
	UnitID     string                `json:"unit_id"`
	Status     string                `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
	Items      []MaskOutcomeResponse `json:"items,omitempty"`
}

type MaskOutcomeResponse struct {
	RegionID   string `json:"region_id"`
	ParentID   string `json:"parent_id,omitempty"`
	AssetName  string `json:"asset_name,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

type AssetResponse struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Year int    `json:"year,omitempty"`
	Path string `json:"path"`
}

type RegionNodeResponse struct {
	ID       string               `json:"id"`
	Level    int                  `json:"level"`
	ParentID string               `json:"parent_id,omitempty"`
	CRS      string               `json:"crs,omitempty"`
	Assets   []AssetResponse      `json:"assets"`
	Children []RegionNodeResponse `json:"children,omitempty"`
}

func ToRunResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:          run.ID,
		Status:      string(run.Status),
		SubmittedAt: run.SubmittedAt.Format(time.RFC3339),
		Error:       run.Error,
	}
	if run.Report != nil {
		report := ToRunReportResponse(run.Report)
		resp.Report = &report
	}
	return resp
}

func ToRunReportResponse(r *domain.RunReport) RunReportResponse {
	resp := RunReportResponse{
		ID:         r.ID,
		Mode:       string(r.Mode),
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
		Counts:     map[string]int{},
		Units:      make([]UnitOutcomeResponse, 0, len(r.Units)),
	}
	for status, n := range r.Counts() {
		resp.Counts[string(status)] = n
	}

	for _, u := range r.Units {
		unit := UnitOutcomeResponse{
			UnitID:     u.UnitID,
			Status:     string(u.Status),
			Reason:     u.Reason,
			DurationMS: u.Duration.Milliseconds(),
		}
		for _, it := range u.Items {
			unit.Items = append(unit.Items, MaskOutcomeResponse{
				RegionID:   it.RegionID,
				ParentID:   it.ParentID,
				AssetName:  it.AssetName,
				OutputPath: it.OutputPath,
				Status:     string(it.Status),
				Reason:     it.Reason,
			})
		}
		resp.Units = append(resp.Units, unit)
	}

	for _, root := range r.Roots {
		if root != nil {
			resp.Regions = append(resp.Regions, ToRegionNodeResponse(root))
		}
	}
	return resp
}

func ToRegionNodeResponse(n *domain.RegionNode) RegionNodeResponse {
	resp := RegionNodeResponse{
		ID:       n.ID,
		Level:    n.Level,
		ParentID: n.ParentID,
		CRS:      n.CRS,
		Assets:   make([]AssetResponse, 0, len(n.Assets)),
	}
	for _, a := range n.Assets {
		resp.Assets = append(resp.Assets, AssetResponse{Name: a.Name, Kind: string(a.Kind), Year: a.Year, Path: a.Path})
	}
	for _, c := range n.Children {
		resp.Children = append(resp.Children, ToRegionNodeResponse(c))
	}
	return resp
}
