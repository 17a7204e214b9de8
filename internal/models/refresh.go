/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Operation is the kind of work a queued refresh performs.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationEdit    Operation = "edit"
	OperationRefresh Operation = "refresh"
	OperationDelete  Operation = "delete"
)

// Trigger records what caused a refresh.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerAuto      Trigger = "auto"
	TriggerScheduled Trigger = "scheduled"
)

// RefreshQueueItem is a unit of work for the refresh consumer. It is held in
// memory only.
type RefreshQueueItem struct {
	ID        string
	ListID    string
	Kind      ListKind
	Operation Operation
	Spec      *ListSpec
	// UserID targets one owner; empty means every owner in Spec.
	UserID     string
	Trigger    Trigger
	EnqueuedAt time.Time
}

// RefreshResult is the outcome of refreshing one list for one owner.
type RefreshResult struct {
	ListID         string        `json:"listId"`
	ListName       string        `json:"listName"`
	UserID         string        `json:"userId,omitempty"`
	Operation      Operation     `json:"operation"`
	Trigger        Trigger       `json:"trigger"`
	Success        bool          `json:"success"`
	Message        string        `json:"message,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
	ArtifactID     string        `json:"artifactId,omitempty"`
	ItemCount      int           `json:"itemCount"`
	RuntimeMinutes float64       `json:"runtimeMinutes"`
	FinishedAt     time.Time     `json:"finishedAt"`
}
