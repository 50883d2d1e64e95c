// Package catalog 外部音乐目录客户端（Spotify Web API 的请求/响应形状）
package catalog

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Images []Image  `json:"images"`
	URI    string   `json:"uri"`
}

type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AlbumType   string   `json:"album_type"`
	Artists     []Artist `json:"artists"`
	Genres      []string `json:"genres"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Images      []Image  `json:"images"`
	Label       string   `json:"label,omitempty"`
	URI         string   `json:"uri"`
}

// CoverURL 第一张图，没有则为空
func (a *Album) CoverURL() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0].URL
}

func (a *Album) ArtistNames() []string {
	out := make([]string, 0, len(a.Artists))
	for _, ar := range a.Artists {
		out = append(out, ar.Name)
	}
	return out
}

// Profile /me 返回的账号资料
type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Country     string  `json:"country"`
	Images      []Image `json:"images"`
}

type searchResponse struct {
	Albums struct {
		Items []Album `json:"items"`
	} `json:"albums"`
}
