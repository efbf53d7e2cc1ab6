package queue

// Package queue persists the download queue between runs. Tasks are stored as
// an ordered JSON array; interrupted items come back as Pending so resume via
// partial files works after a restart.
