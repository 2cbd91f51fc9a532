package fetch

import "time"

// LookupQuery selects charts from the v1 get_beatmaps endpoint. Zero fields
// are left out of the request.
type LookupQuery struct {
	BeatmapID    int    `url:"b,omitempty"`
	BeatmapSetID int    `url:"s,omitempty"`
	Checksum     string `url:"h,omitempty"`
	Mode         int    `url:"m,omitempty"`
	Limit        int    `url:"limit,omitempty"`
}

type lookupParams struct {
	LookupQuery
	Key string `url:"k,omitempty"`
}

// BeatmapInfo is one chart as the v1 API reports it. The API sends every
// number as a string.
type BeatmapInfo struct {
	BeatmapID    int     `json:"beatmap_id,string"`
	BeatmapSetID int     `json:"beatmapset_id,string"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Creator      string  `json:"creator"`
	Version      string  `json:"version"`
	Checksum     string  `json:"file_md5"`
	Approved     int     `json:"approved,string"`
	Mode         int     `json:"mode,string"`
	BPM          float64 `json:"bpm,string"`
	CircleSize   float64 `json:"diff_size,string"`
	Overall      float64 `json:"diff_overall,string"`
	Approach     float64 `json:"diff_approach,string"`
	Drain        float64 `json:"diff_drain,string"`
	TotalLength  int     `json:"total_length,string"`
	HitLength    int     `json:"hit_length,string"`
	CountNormal  int     `json:"count_normal,string"`
	CountSlider  int     `json:"count_slider,string"`
	CountSpinner int     `json:"count_spinner,string"`
}

// Beatmap is the v2 API's view of a chart, trimmed to what is catalogued.
type Beatmap struct {
	ID            int        `json:"id"`
	BeatmapsetID  int        `json:"beatmapset_id"`
	Checksum      string     `json:"checksum"`
	Version       string     `json:"version"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	Ar            float64    `json:"ar"`
	Cs            float64    `json:"cs"`
	Accuracy      float64    `json:"accuracy"`
	Drain         float64    `json:"drain"`
	Bpm           float64    `json:"bpm"`
	CountCircles  int        `json:"count_circles"`
	CountSliders  int        `json:"count_sliders"`
	CountSpinners int        `json:"count_spinners"`
	TotalLength   int        `json:"total_length"`
	HitLength     int        `json:"hit_length"`
	LastUpdated   time.Time  `json:"last_updated"`
	Beatmapset    Beatmapset `json:"beatmapset"`
}

type Beatmapset struct {
	ID           int          `json:"id"`
	Artist       string       `json:"artist"`
	Title        string       `json:"title"`
	Creator      string       `json:"creator"`
	Status       string       `json:"status"`
	Availability Availability `json:"availability"`
}

type Availability struct {
	DownloadDisabled bool    `json:"download_disabled"`
	MoreInformation  *string `json:"more_information"`
}

type beatmapsQuery struct {
	IDs []int `url:"ids[]"`
}

// Token is an OAuth client-credentials grant.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}
