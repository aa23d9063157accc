package model

import "time"

// Settings are the tunables of the engine. Zero values mean "use the default".
type Settings struct {
	APIURL            string
	APIToken          string
	StatsPollInterval time.Duration
	JobPollInterval   time.Duration
	FreshnessWindow   time.Duration
	NotificationTTL   time.Duration
	MaxNotifications  int
}
