package api

import (
	"github.com/lysyi3m/music-digest/app/aggregator"
	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

type RegistryInterface interface {
	Summary() aggregator.Summary
}

var _ RegistryInterface = (*aggregator.Aggregator)(nil)

type Handler struct {
	itemRepo    database.ItemRepository
	runRepo     database.RunRepository
	registry    RegistryInterface
	configCache *feed.ConfigCache
	resolver    *daterange.Resolver
	version     string
}
