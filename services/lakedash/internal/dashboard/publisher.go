package dashboard

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// PrimaryLinkIndex selects the dashboard link as the report's main view.
	PrimaryLinkIndex = 0
	// WindowHeight is the report viewer height in pixels.
	WindowHeight = 800
)

// HTMLLink points a report at one entry page inside an uploaded bundle.
type HTMLLink struct {
	Handle      string `json:"shock_id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ObjectRef names a stored object produced by a run.
type ObjectRef struct {
	Ref         string `json:"ref"`
	Description string `json:"description,omitempty"`
}

// ReportParams is the registration request sent to the report collaborator.
type ReportParams struct {
	Message             string      `json:"message"`
	WorkspaceName       string      `json:"workspace_name"`
	ObjectsCreated      []ObjectRef `json:"objects_created"`
	HTMLLinks           []HTMLLink  `json:"html_links"`
	DirectHTMLLinkIndex int         `json:"direct_html_link_index"`
	HTMLWindowHeight    int         `json:"html_window_height"`
}

// ReportInfo identifies a registered report.
type ReportInfo struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
}

// ReportRegistrar creates report records.
type ReportRegistrar interface {
	CreateReport(ctx context.Context, params ReportParams) (ReportInfo, error)
}

// Links returns the dashboard and heatmap entry points for handle.
func Links(handle string) []HTMLLink {
	return []HTMLLink{
		{
			Handle:      handle,
			Name:        "index.html",
			Label:       "Genome Datalake Dashboard",
			Description: "Interactive dashboard for genome datalake tables",
		},
		{
			Handle:      handle,
			Name:        "heatmap/index.html",
			Label:       "Genome Heatmap Viewer",
			Description: "Interactive heatmap visualization of genome features with tracks, phylogenetic tree, pangenome clusters, and metabolic pathways",
		},
	}
}

// Publisher registers reports for uploaded bundles.
type Publisher struct {
	reports ReportRegistrar
	metrics *Metrics
}

// NewPublisher returns a Publisher backed by reports.
func NewPublisher(reports ReportRegistrar, metrics *Metrics) (*Publisher, error) {
	if reports == nil {
		return nil, errors.New("report registrar is required")
	}
	return &Publisher{reports: reports, metrics: metrics}, nil
}

// Publish registers a report in workspaceName linking to the bundle at handle.
func (p *Publisher) Publish(ctx context.Context, handle, workspaceName string) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "dashboard.publish")
	span.SetAttributes(attribute.String("workspace", workspaceName), attribute.String("handle", handle))
	defer func() {
		p.metrics.countReport(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	info, err := p.reports.CreateReport(ctx, ReportParams{
		Message:             "",
		WorkspaceName:       workspaceName,
		ObjectsCreated:      []ObjectRef{},
		HTMLLinks:           Links(handle),
		DirectHTMLLinkIndex: PrimaryLinkIndex,
		HTMLWindowHeight:    WindowHeight,
	})
	if err != nil {
		return Result{}, newError(KindReportRegistration, err, "create report in %s", workspaceName)
	}
	if info.Name == "" || info.Ref == "" {
		return Result{}, newError(KindReportRegistration, nil, "report registration returned name %q ref %q", info.Name, info.Ref)
	}

	return Result{ReportName: info.Name, ReportRef: info.Ref}, nil
}
