package normalize

// subcategory is one leaf of the taxonomy with the keywords that imply it.
type subcategory struct {
	Name     string
	Keywords []string
}

// category groups subcategories. Order is significant: the first entry with
// the strongest match wins.
type category struct {
	Name          string
	Subcategories []subcategory
}

var taxonomy = []category{
	{Name: "Musical Instruments", Subcategories: []subcategory{
		{Name: "Guitars", Keywords: []string{"guitar", "electric guitar", "acoustic guitar", "bass guitar", "stratocaster", "telecaster", "les paul", "fretboard"}},
		{Name: "Keyboards", Keywords: []string{"piano", "keyboard", "synthesizer", "synth", "organ"}},
		{Name: "Drums", Keywords: []string{"drum", "snare", "cymbal", "drum kit"}},
		{Name: "Wind Instruments", Keywords: []string{"saxophone", "trumpet", "flute", "clarinet", "trombone"}},
		{Name: "String Instruments", Keywords: []string{"violin", "cello", "viola", "double bass", "ukulele", "banjo", "mandolin"}},
	}},
	{Name: "Electronics", Subcategories: []subcategory{
		{Name: "Cameras", Keywords: []string{"camera", "dslr", "mirrorless", "lens", "camcorder"}},
		{Name: "Computers", Keywords: []string{"laptop", "notebook computer", "desktop", "macbook", "computer", "tablet"}},
		{Name: "Phones", Keywords: []string{"phone", "smartphone", "iphone", "android"}},
		{Name: "Audio", Keywords: []string{"headphones", "speaker", "amplifier", "turntable", "receiver", "earbuds"}},
		{Name: "Gaming", Keywords: []string{"console", "playstation", "xbox", "nintendo", "controller"}},
	}},
	{Name: "Jewelry", Subcategories: []subcategory{
		{Name: "Watches", Keywords: []string{"watch", "wristwatch", "chronograph", "submariner"}},
		{Name: "Rings", Keywords: []string{"ring", "engagement ring", "wedding band"}},
		{Name: "Necklaces", Keywords: []string{"necklace", "pendant", "chain"}},
		{Name: "Earrings", Keywords: []string{"earring", "earrings", "studs"}},
		{Name: "Bracelets", Keywords: []string{"bracelet", "bangle", "cuff"}},
	}},
	{Name: "Furniture", Subcategories: []subcategory{
		{Name: "Chairs", Keywords: []string{"chair", "armchair", "recliner", "stool", "lounge chair"}},
		{Name: "Tables", Keywords: []string{"table", "desk", "dining table", "coffee table"}},
		{Name: "Sofas", Keywords: []string{"sofa", "couch", "loveseat", "sectional"}},
		{Name: "Storage", Keywords: []string{"dresser", "cabinet", "bookcase", "wardrobe", "chest of drawers"}},
	}},
	{Name: "Art", Subcategories: []subcategory{
		{Name: "Paintings", Keywords: []string{"painting", "oil on canvas", "watercolor", "acrylic"}},
		{Name: "Prints", Keywords: []string{"print", "lithograph", "screenprint", "etching", "poster"}},
		{Name: "Sculptures", Keywords: []string{"sculpture", "statue", "bronze", "figurine"}},
		{Name: "Photographs", Keywords: []string{"photograph", "gelatin silver"}},
	}},
	{Name: "Collectibles", Subcategories: []subcategory{
		{Name: "Coins", Keywords: []string{"coin", "numismatic", "bullion", "penny", "dollar coin"}},
		{Name: "Stamps", Keywords: []string{"stamp", "philatelic", "postage"}},
		{Name: "Trading Cards", Keywords: []string{"trading card", "baseball card", "pokemon card", "rookie card"}},
		{Name: "Toys", Keywords: []string{"action figure", "lego", "doll", "model train"}},
	}},
	{Name: "Books", Subcategories: []subcategory{
		{Name: "Rare Books", Keywords: []string{"first edition", "first printing", "manuscript", "incunabula"}},
		{Name: "Comics", Keywords: []string{"comic", "graphic novel", "manga"}},
		{Name: "Fiction", Keywords: []string{"novel", "hardcover", "paperback"}},
	}},
	{Name: "Clothing", Subcategories: []subcategory{
		{Name: "Outerwear", Keywords: []string{"jacket", "coat", "parka", "blazer"}},
		{Name: "Footwear", Keywords: []string{"shoes", "sneakers", "boots", "heels"}},
		{Name: "Handbags", Keywords: []string{"handbag", "purse", "tote", "clutch"}},
	}},
	{Name: "Tools", Subcategories: []subcategory{
		{Name: "Power Tools", Keywords: []string{"drill", "circular saw", "sander", "impact driver", "router"}},
		{Name: "Hand Tools", Keywords: []string{"hammer", "wrench", "screwdriver", "chisel", "plane"}},
	}},
	{Name: "Sports", Subcategories: []subcategory{
		{Name: "Bicycles", Keywords: []string{"bicycle", "bike", "road bike", "mountain bike"}},
		{Name: "Golf", Keywords: []string{"golf", "putter", "driver", "iron set"}},
		{Name: "Fitness", Keywords: []string{"treadmill", "dumbbell", "kettlebell", "rowing machine"}},
	}},
}

// alias maps a lower-cased phrase to a canonical model and its brand.
type alias struct {
	Canonical string
	Brand     string
}

var aliases = map[string]alias{
	"strat":               {Canonical: "Fender Stratocaster", Brand: "Fender"},
	"stratocaster":        {Canonical: "Fender Stratocaster", Brand: "Fender"},
	"fender stratocaster": {Canonical: "Fender Stratocaster", Brand: "Fender"},
	"tele":                {Canonical: "Fender Telecaster", Brand: "Fender"},
	"telecaster":          {Canonical: "Fender Telecaster", Brand: "Fender"},
	"fender telecaster":   {Canonical: "Fender Telecaster", Brand: "Fender"},
	"les paul":            {Canonical: "Gibson Les Paul", Brand: "Gibson"},
	"gibson les paul":     {Canonical: "Gibson Les Paul", Brand: "Gibson"},
	"gibson sg":           {Canonical: "Gibson SG", Brand: "Gibson"},
	"submariner":          {Canonical: "Rolex Submariner", Brand: "Rolex"},
	"rolex submariner":    {Canonical: "Rolex Submariner", Brand: "Rolex"},
	"speedy":              {Canonical: "Omega Speedmaster", Brand: "Omega"},
	"speedmaster":         {Canonical: "Omega Speedmaster", Brand: "Omega"},
	"omega speedmaster":   {Canonical: "Omega Speedmaster", Brand: "Omega"},
	"mbp":                 {Canonical: "Apple MacBook Pro", Brand: "Apple"},
	"macbook pro":         {Canonical: "Apple MacBook Pro", Brand: "Apple"},
	"ps5":                 {Canonical: "Sony PlayStation 5", Brand: "Sony"},
	"playstation 5":       {Canonical: "Sony PlayStation 5", Brand: "Sony"},
	"aeron":               {Canonical: "Herman Miller Aeron Chair", Brand: "Herman Miller"},
	"eames lounger":       {Canonical: "Herman Miller Eames Lounge Chair", Brand: "Herman Miller"},
	"eames lounge chair":  {Canonical: "Herman Miller Eames Lounge Chair", Brand: "Herman Miller"},
	"5d mark iv":          {Canonical: "Canon EOS 5D Mark IV", Brand: "Canon"},
	"d850":                {Canonical: "Nikon D850", Brand: "Nikon"},
}

// brands are recognized in free text when no brand attribute is supplied.
var brands = []string{
	"fender", "gibson", "martin", "taylor", "yamaha", "roland", "steinway",
	"rolex", "omega", "cartier", "tiffany", "seiko",
	"apple", "sony", "canon", "nikon", "leica", "bose", "samsung", "nintendo",
	"herman miller", "knoll", "ikea",
	"dewalt", "makita", "milwaukee",
	"louis vuitton", "hermes", "gucci", "chanel",
}
