package kbase

import (
	"context"
	"fmt"

	"lakedash/services/lakedash/internal/dashboard"
)

// FileToShockParams asks DataFileUtil to store a local file or directory.
type FileToShockParams struct {
	FilePath string `json:"file_path"`
	Pack     string `json:"pack,omitempty"`
}

// FileToShockOutput is the stored node.
type FileToShockOutput struct {
	ShockID      string `json:"shock_id"`
	NodeFileName string `json:"node_file_name,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// DataFileUtil is the DataFileUtil module client.
type DataFileUtil struct {
	client *Client
}

// NewDataFileUtil returns a DataFileUtil bound to c.
func NewDataFileUtil(c *Client) *DataFileUtil {
	return &DataFileUtil{client: c}
}

// FileToShock uploads params.FilePath and returns the stored node.
func (d *DataFileUtil) FileToShock(ctx context.Context, params FileToShockParams) (FileToShockOutput, error) {
	var out FileToShockOutput
	if err := d.client.RunJob(ctx, "DataFileUtil.file_to_shock", []any{params}, &out); err != nil {
		return FileToShockOutput{}, err
	}
	return out, nil
}

// Upload stores dir packed with pack and returns the node id.
func (d *DataFileUtil) Upload(ctx context.Context, dir, pack string) (string, error) {
	out, err := d.FileToShock(ctx, FileToShockParams{FilePath: dir, Pack: pack})
	if err != nil {
		return "", err
	}
	if out.ShockID == "" {
		return "", fmt.Errorf("file_to_shock %s: no shock_id in response", dir)
	}
	return out.ShockID, nil
}

// KBaseReport is the KBaseReport module client.
type KBaseReport struct {
	client *Client
}

// NewKBaseReport returns a KBaseReport bound to c.
func NewKBaseReport(c *Client) *KBaseReport {
	return &KBaseReport{client: c}
}

// CreateReport calls create_extended_report.
func (r *KBaseReport) CreateReport(ctx context.Context, params dashboard.ReportParams) (dashboard.ReportInfo, error) {
	var info dashboard.ReportInfo
	if err := r.client.RunJob(ctx, "KBaseReport.create_extended_report", []any{params}, &info); err != nil {
		return dashboard.ReportInfo{}, err
	}
	return info, nil
}
