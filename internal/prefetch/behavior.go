package prefetch

import (
	"encoding/json"
	"time"

	"github.com/mediacache/mediacache/pkg/types"
)

// BehaviorData records observed library usage. It is loaded once at
// startup from the durable store and re-persisted after every mutation;
// unlike session cache entries it survives across sessions.
type BehaviorData struct {
	ViewedAssets       []string          `json:"viewed_assets"`
	SearchPatterns     []string          `json:"search_patterns"`
	FilterPreferences  map[string]string `json:"filter_preferences"`
	TimeSpentInLibrary time.Duration     `json:"time_spent_in_library"`
	LastVisit          time.Time         `json:"last_visit"`
}

// newBehaviorData returns an empty default structure
func newBehaviorData() BehaviorData {
	return BehaviorData{
		FilterPreferences: make(map[string]string),
	}
}

// loadBehaviorData reads behavior data from the durable store. Absent
// or corrupt data falls back to the empty default rather than failing.
func loadBehaviorData(store types.Store, key string) BehaviorData {
	data := newBehaviorData()
	if store == nil {
		return data
	}

	raw, ok := store.Get(key)
	if !ok {
		return data
	}

	var loaded BehaviorData
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return data
	}
	if loaded.FilterPreferences == nil {
		loaded.FilterPreferences = make(map[string]string)
	}
	return loaded
}

// saveBehaviorData persists the full structure to the durable store
func saveBehaviorData(store types.Store, key string, data BehaviorData) error {
	if store == nil {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return store.Set(key, string(raw))
}

// pushFront prepends value to list, truncating to cap entries
func pushFront(list []string, value string, capacity int) []string {
	list = append([]string{value}, list...)
	if len(list) > capacity {
		list = list[:capacity]
	}
	return list
}
