package models

// Tab selects which panel the storefront renders.
type Tab string

const (
	TabHome        Tab = "home"
	TabServices    Tab = "services"
	TabCommander   Tab = "commander"
	TabContact     Tab = "contact"
	TabCart        Tab = "cart"
	TabLogin       Tab = "login"
	TabRegister    Tab = "register"
	TabProfile     Tab = "profile"
	TabEditProfile Tab = "edit-profile"
)

var tabs = map[Tab]bool{
	TabHome: true, TabServices: true, TabCommander: true, TabContact: true, TabCart: true,
	TabLogin: true, TabRegister: true, TabProfile: true, TabEditProfile: true,
}

func (t Tab) Valid() bool {
	return tabs[t]
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "En attente"
	OrderProcessing OrderStatus = "En traitement"
	OrderReady      OrderStatus = "Prête"
	OrderDelivered  OrderStatus = "Livrée"
)

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	ZipCode   string `json:"zipCode"`
	City      string `json:"city"`
}

// Context projects the full profile down to the session identity.
func (u User) Context() UserContext {
	return UserContext{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

type UserContext struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type LoginDto struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterDto struct {
	User
	Password string `json:"password"`
}

type CartItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity,omitempty"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

type Order struct {
	ID     string      `json:"id"`
	UserID string      `json:"userId,omitempty"`
	Date   string      `json:"date"`
	Items  []CartItem  `json:"items"`
	Total  float64     `json:"total"`
	Status OrderStatus `json:"status"`
}

type ProductData struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	InStock     int     `json:"inStock"`
	Category    string  `json:"category"`
	IconName    string  `json:"iconName"`
	Icon        string  `json:"icon"`
}

type GeneratePresignedURLDto struct {
	UserID       string `json:"userId"`
	OrderID      string `json:"orderId"`
	FileType     string `json:"fileType"`
	OriginalName string `json:"originalName"`
}

type UploadURL struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

type GeoSuggestCollection struct {
	Type     string       `json:"type"`
	Features []GeoSuggest `json:"features"`
	Query    string       `json:"query"`
}

type GeoSuggest struct {
	Type       string               `json:"type"`
	Properties GeoSuggestProperties `json:"properties"`
	Geometry   GeoSuggestGeometry   `json:"geometry"`
}

// Address returns the street, postcode and city a suggestion fills in.
func (s GeoSuggest) Address() (address, zipCode, city string) {
	return s.Properties.Name, s.Properties.Postcode, s.Properties.City
}

type GeoSuggestProperties struct {
	Label       string  `json:"label"`
	ID          string  `json:"id"`
	Postcode    string  `json:"postcode"`
	City        string  `json:"city"`
	District    string  `json:"district"`
	Street      string  `json:"street"`
	HouseNumber string  `json:"housenumber"`
	CityCode    string  `json:"citycode"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Score       float64 `json:"score"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Context     string  `json:"context"`
	Importance  float64 `json:"importance"`
}

type GeoSuggestGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Location is what the storefront keeps from an IP geolocation lookup.
type Location struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Postal      string  `json:"postal"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type EmailPayload struct {
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Message         string `json:"message"`
	Name            string `json:"name,omitempty"`
	OrderDetailsURI string `json:"orderDetailsUri"`
	Email           string `json:"email,omitempty"`
}

type EmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ServiceData struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	IconName string `json:"iconName"`
	Desc     string `json:"desc"`
	Price    string `json:"price"`
}

type MenuItem struct {
	Label string `json:"label"`
	Key   Tab    `json:"key"`
}
