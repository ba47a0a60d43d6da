package catalog

import "storefront/internal/models"

var BrandColors = struct {
	Yellow, RedText, RedBg, RedHover string
}{
	Yellow:   "bg-yellow-400",
	RedText:  "text-red-600",
	RedBg:    "bg-red-600",
	RedHover: "hover:bg-red-700",
}

var ServicesData = []models.ServiceData{
	{ID: 1, Title: "Tirages Numériques", IconName: "Image", Desc: "Vos photos sur papier premium Kodak Royal.", Price: "Dès 0,25€"},
	{ID: 2, Title: "Photos d'Identité", IconName: "UserIcon", Desc: "Normes ANTS pour passeport, CNI, permis.", Price: "12,00€ / planche"},
	{ID: 3, Title: "Cadeaux Photo", IconName: "Gift", Desc: "Mugs, toiles, coussins personnalisés.", Price: "Dès 14,90€"},
	{ID: 4, Title: "Développement Film", IconName: "Film", Desc: "Expertise argentique couleur et N&B.", Price: "Dès 9,90€"},
}

var MenuItems = []models.MenuItem{
	{Label: "Accueil", Key: models.TabHome},
	{Label: "Services", Key: models.TabServices},
	{Label: "Commander", Key: models.TabCommander},
	{Label: "Contact", Key: models.TabContact},
}

// Store is the shop shown on the contact panel.
var Store = struct {
	Street, City, Phone, Email string
	Hours                      []OpeningHours
}{
	Street: "12 Rue de la Photographie",
	City:   "75001 Paris, France",
	Phone:  "01 23 45 67 89",
	Email:  "contact@kodakexpress-demo.fr",
	Hours: []OpeningHours{
		{Days: "Lundi - Samedi", Hours: "09h30 - 19h30"},
		{Days: "Dimanche", Hours: "Fermé"},
	},
}

type OpeningHours struct {
	Days  string
	Hours string
}

// Icons maps product icon names to the glyph shown beside them.
var Icons = map[string]string{
	"Image":    "🖼",
	"UserIcon": "👤",
	"Gift":     "🎁",
	"Film":     "🎞",
}

func Icon(name string) string {
	if icon, ok := Icons[name]; ok {
		return icon
	}
	return Icons["Image"]
}

// Offers are the promotions that can be added to the cart without a
// catalogue product.
var Offers = map[string]models.CartItem{
	"pack50": {Name: "Pack 50 Tirages 10x15", Price: 15, Quantity: 50},
}
