package model

type Document struct {
	ID       string            `json:"id"`
	OrgID    string            `json:"org_id"`
	Title    string            `json:"title"`
	Source   string            `json:"source"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Ctime    int64             `json:"ctime"`
	Mtime    int64             `json:"mtime"`
}

type Organization struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RPM      int    `json:"rpm"`
	Burst    int    `json:"burst"`
	Ctime    int64  `json:"ctime"`
}
