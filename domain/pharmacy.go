package domain

// Pharmacy is the store profile printed on receipt headers.
type Pharmacy struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}
