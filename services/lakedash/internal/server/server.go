// Package server exposes the dashboard service over JSON-RPC.
package server

import (
	"context"
	"encoding/json"

	"lakedash/services/lakedash/internal/dashboard"
	"lakedash/services/lakedash/internal/rpc"
)

// Method names served on the wire.
const (
	MethodRunDashboard = "KBDatalakeDashboard2.run_genome_datalake_dashboard"
	MethodStatus       = "KBDatalakeDashboard2.status"
)

// Register binds the dashboard methods to d.
func Register(d *rpc.Dispatcher, svc *dashboard.Service) {
	d.Register(MethodRunDashboard, runDashboard(svc))
	d.Register(MethodStatus, status(svc))
}

func runDashboard(svc *dashboard.Service) rpc.Handler {
	return func(ctx context.Context, params []json.RawMessage) (any, error) {
		if len(params) == 0 {
			return nil, rpc.InvalidParams("%s requires a parameter object", MethodRunDashboard)
		}
		req, err := dashboard.DecodeRequest(params[0])
		if err != nil {
			return nil, err
		}
		return svc.Run(ctx, req)
	}
}

func status(svc *dashboard.Service) rpc.Handler {
	return func(context.Context, []json.RawMessage) (any, error) {
		return svc.Status(), nil
	}
}
