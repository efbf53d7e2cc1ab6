package model

// Package model defines domain data structures used across the app: download
// tasks, conversion tasks, playlist entities, and status enums. Download tasks
// carry JSON tags so the queue store can persist them across restarts.
