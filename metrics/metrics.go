// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ThumbnailDecodeTotal counts decode attempts by media type and outcome (ok/fallback).
	ThumbnailDecodeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_thumbnail_decode_total",
		Help: "Total number of thumbnail decodes, by media type and outcome.",
	}, []string{"media_type", "outcome"})

	// ThumbnailCacheTotal counts cache lookups by tier (memory/redis) and result (hit/miss).
	ThumbnailCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_thumbnail_cache_total",
		Help: "Total number of thumbnail cache lookups, by tier and result.",
	}, []string{"tier", "result"})

	// ThumbnailFillsDiscarded counts asynchronous fills dropped because their board moved on.
	ThumbnailFillsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_thumbnail_fills_discarded_total",
		Help: "Total number of thumbnail fills discarded after a newer render, by board.",
	}, []string{"board"})

	SearchRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_search_request_total",
		Help: "Total number of search requests, by source and outcome.",
	}, []string{"source", "outcome"})

	SearchSupersededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxpro_search_superseded_total",
		Help: "Total number of searches superseded by a newer call.",
	})

	AssignmentReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_assignment_reload_total",
		Help: "Total number of assignment table reloads, by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	HotkeyActionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_hotkey_action_total",
		Help: "Total number of hotkey actions, by action and outcome.",
	}, []string{"action", "outcome"})

	PlaybackPresentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_playback_present_total",
		Help: "Total number of surfaces presented, by surface kind.",
	}, []string{"surface"})

	NoticeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxpro_notice_total",
		Help: "Total number of user-visible notices, by level.",
	}, []string{"level"})

	// AssignedSlots tracks how many of the hotkey slots currently have an assignment.
	AssignedSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxpro_assigned_slots",
		Help: "Current number of hotkey slots with an assignment.",
	})

	// PlaybackActive is 1 while a playback session exists.
	PlaybackActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxpro_playback_active",
		Help: "Whether a playback session is currently active.",
	})
)
