// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hooks runs user-defined rules against verification verdicts.
// Rules are YAML files whose condition is an expr-lang expression evaluated
// over the verdict data; matching rules trigger an action such as a warning
// log or a signed webhook.
package hooks

import (
	"time"
)

// HookEvent defines the type of event that can trigger a hook.
type HookEvent string

const (
	EventVerificationApproved HookEvent = "verification_approved"
	EventVerificationRejected HookEvent = "verification_rejected"
)

// AllEvents lists every event the manager subscribes to.
var AllEvents = []HookEvent{EventVerificationApproved, EventVerificationRejected}

// HookAction defines the action to be performed when a hook is triggered.
type HookAction string

const (
	ActionLogWarning    HookAction = "log_warning"
	ActionNotifyWebhook HookAction = "notify_webhook"
)

// Hook represents a single automation rule.
type Hook struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Event       HookEvent      `yaml:"event" json:"event"`
	Condition   string         `yaml:"condition" json:"condition"`
	Action      HookAction     `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params" json:"params"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`

	// FilePath is the source file (not in YAML)
	FilePath string `yaml:"-" json:"-"`
}

// EventContext provides the environment for hook execution.
type EventContext struct {
	Event          HookEvent      `json:"event"`
	Timestamp      time.Time      `json:"timestamp"`
	VerificationID string         `json:"verification_id,omitempty"`
	Data           map[string]any `json:"data"`
}

// ActionHandler is a function that executes a hook action.
type ActionHandler func(hook *Hook, ctx *EventContext) error
