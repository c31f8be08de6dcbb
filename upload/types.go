package upload

// Target is the result of the apply phase. AuthToken and SessionKey are
// only valid for the upload attempt that obtained them.
type Target struct {
	VideoID    string
	UploadHost string
	StoreURI   string
	UploadURL  string
	AuthToken  string
	SessionKey string
}

// CommitResult is the outcome of the commit phase.
type CommitResult struct {
	RequestID string
	Results   []CommitItem
}

// CommitItem describes one committed video.
type CommitItem struct {
	Vid       string    `json:"Vid"`
	PosterURI string    `json:"PosterUri"`
	VideoMeta VideoMeta `json:"VideoMeta"`
}

// VideoMeta is the media information returned by the GetMeta function.
type VideoMeta struct {
	URI      string  `json:"Uri"`
	Height   int     `json:"Height"`
	Width    int     `json:"Width"`
	Duration float64 `json:"Duration"`
	Bitrate  int64   `json:"Bitrate"`
	Format   string  `json:"Format"`
	Size     int64   `json:"Size"`
	MD5      string  `json:"Md5"`
}

type responseMetadata struct {
	RequestID string    `json:"RequestId"`
	Action    string    `json:"Action"`
	Version   string    `json:"Version"`
	Service   string    `json:"Service"`
	Region    string    `json:"Region"`
	Error     *apiError `json:"Error,omitempty"`
}

type apiError struct {
	CodeN   int    `json:"CodeN"`
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

func (e *apiError) empty() bool {
	return e == nil || (e.Code == "" && e.CodeN == 0 && e.Message == "")
}

type envelope struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
}

type storeInfo struct {
	StoreURI string `json:"StoreUri"`
	Auth     string `json:"Auth"`
}

type uploadNode struct {
	Vid        string      `json:"Vid"`
	UploadHost string      `json:"UploadHost"`
	SessionKey string      `json:"SessionKey"`
	StoreInfos []storeInfo `json:"StoreInfos"`
}

type applyResponse struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
	Result           struct {
		InnerUploadAddress struct {
			UploadNodes []uploadNode `json:"UploadNodes"`
		} `json:"InnerUploadAddress"`
	} `json:"Result"`
}

type commitFunction struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

type commitRequest struct {
	SessionKey string           `json:"SessionKey"`
	Functions  []commitFunction `json:"Functions"`
}

type commitResponse struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
	Result           struct {
		Results []CommitItem `json:"Results"`
	} `json:"Result"`
}

// storageResponse is the envelope used by the storage node.
type storageResponse struct {
	Code       *int   `json:"code"`
	APIVersion string `json:"apiversion"`
	Message    string `json:"message"`
	Data       struct {
		UploadID string `json:"uploadid"`
		Crc32    string `json:"crc32"`
	} `json:"data"`
}
