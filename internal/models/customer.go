package models

import "time"

// Customer is an external contact reachable through a staff account.
// Identified by the natural key (OperatorID, CorpID, StaffID, ExternalID);
// everything else is mutable and overwritten on re-sync.
type Customer struct {
	ID         int64  `json:"id"`
	OperatorID string `json:"operator_id"`
	CorpID     string `json:"corp_id"`
	StaffID    string `json:"staff_id"`
	ExternalID string `json:"external_id"`

	Name         string `json:"name"`
	Position     string `json:"position"`
	Avatar       string `json:"avatar"`
	CorpName     string `json:"corp_name"`
	CorpFullName string `json:"corp_full_name"`
	Type         int    `json:"type"`
	Gender       int    `json:"gender"`
	UnionID      string `json:"union_id"`

	Remark          string   `json:"remark"`
	Description     string   `json:"description"`
	ContactTime     int64    `json:"contact_time"`
	TagIDs          []string `json:"tag_ids"`
	RemarkCorpName  string   `json:"remark_corp_name"`
	RemarkMobiles   []string `json:"remark_mobiles"`
	AddWay          int      `json:"add_way"`
	State           string   `json:"state"`
	ChannelNickname string   `json:"channel_nickname"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StaffAccount is a corp member enabled for external customer contact,
// the unit of work granularity for a sync run.
type StaffAccount struct {
	ID         int64     `json:"id"`
	OperatorID string    `json:"operator_id"`
	CorpID     string    `json:"corp_id"`
	StaffID    string    `json:"staff_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Setting is one per-operator configuration value.
type Setting struct {
	ID         int64     `json:"id"`
	OperatorID string    `json:"operator_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	UpdatedAt  time.Time `json:"updated_at"`
}
