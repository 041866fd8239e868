package baseclient

import (
	"context"
	"net/http"
)

type AssetInspection struct {
	ContractID     string  `json:"contractId"`
	UnitID         string  `json:"unitId"`
	InspectionDate string  `json:"inspectionDate"`
	ScheduledDate  *string `json:"scheduledDate,omitempty"`
	InspectorName  *string `json:"inspectorName"`
	InspectorID    *string `json:"inspectorId"`
}

func (c *Client) CreateAssetInspection(ctx context.Context, in *AssetInspection) error {
	return c.do(ctx, serviceAsset, http.MethodPost, c.assetURL+"/api/asset-inspections", in, nil)
}
