package models

import (
	"encoding/json"
	"fmt"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

// The hosted store keeps nested structures as JSON columns. These helpers
// are the only place that encoding lives.

func (r *Report) Visualizations() ([]types.Visualization, error) {
	if r.VisualizationsJSON == "" {
		return nil, nil
	}
	var vizs []types.Visualization
	if err := json.Unmarshal([]byte(r.VisualizationsJSON), &vizs); err != nil {
		return nil, fmt.Errorf("report %s: bad visualization config: %w", r.ID, err)
	}
	return vizs, nil
}

func (r *Report) SetVisualizations(vizs []types.Visualization) error {
	data, err := json.Marshal(vizs)
	if err != nil {
		return err
	}
	r.VisualizationsJSON = string(data)
	return nil
}

func (r *Report) ScheduleConfig() (types.ScheduleConfig, error) {
	var cfg types.ScheduleConfig
	if r.ScheduleConfigJSON == "" {
		return cfg, fmt.Errorf("report %s: no schedule config", r.ID)
	}
	if err := json.Unmarshal([]byte(r.ScheduleConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("report %s: bad schedule config: %w", r.ID, err)
	}
	return cfg, nil
}

func (r *Report) SetScheduleConfig(cfg types.ScheduleConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	r.ScheduleConfigJSON = string(data)
	return nil
}

func (r *Report) Recipients() []string {
	return decodeStrings(r.RecipientsJSON)
}

func (r *Report) SetRecipients(recipients []string) {
	r.RecipientsJSON = encodeStrings(recipients)
}

func (h *DeliveryHistory) Recipients() []string {
	return decodeStrings(h.RecipientsJSON)
}

func (h *DeliveryHistory) SetRecipients(recipients []string) {
	h.RecipientsJSON = encodeStrings(recipients)
}

func (a *Alert) Recipients() []string {
	return decodeStrings(a.RecipientsJSON)
}

func (a *Alert) SetRecipients(recipients []string) {
	a.RecipientsJSON = encodeStrings(recipients)
}

func (a *Alert) Channels() []string {
	return decodeStrings(a.ChannelsJSON)
}

func (a *Alert) SetChannels(channels []string) {
	a.ChannelsJSON = encodeStrings(channels)
}

func (u *Upload) Rows() ([]types.Row, error) {
	if u.RowsJSON == "" {
		return nil, nil
	}
	var rows []types.Row
	if err := json.Unmarshal([]byte(u.RowsJSON), &rows); err != nil {
		return nil, fmt.Errorf("upload %s: bad row payload: %w", u.ID, err)
	}
	return rows, nil
}

func (u *Upload) SetRows(rows []types.Row) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	u.RowsJSON = string(data)
	u.RowCount = len(rows)
	return nil
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeStrings(in []string) string {
	data, _ := json.Marshal(in)
	return string(data)
}
