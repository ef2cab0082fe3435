package models

// Purl2Cpes is one row of the purl-to-CPE dataset. The collection is rebuilt
// wholesale by the dataset-construction task (dropCollection then re-insert).
type Purl2Cpes struct {
	ID   string   `json:"id"`
	Purl string   `json:"purl"`
	CPEs []string `json:"cpes"`
}

func (Purl2Cpes) CollectionName() string { return "Purl2Cpes" }

func (p *Purl2Cpes) DocID() string     { return p.ID }
func (p *Purl2Cpes) SetDocID(id string) { p.ID = id }
