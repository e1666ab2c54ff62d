package config

// WhatsAppSelectors are the DOM hooks for the WhatsApp web client. These
// are obfuscated class names and break whenever WhatsApp ships a redesign;
// they are data, not contract.
type WhatsAppSelectors struct {
	// StaticElement is present once the app shell has rendered, logged in
	// or not.
	StaticElement string `yaml:"static_element"`
	QRCode        string `yaml:"qr_code"`
	// QRCodeAttr holds the QR payload once the code is generated.
	QRCodeAttr       string `yaml:"qr_code_attr"`
	SearchBox        string `yaml:"search_box"`
	SearchBoxCancel  string `yaml:"search_box_cancel"`
	ChatList         string `yaml:"chat_list"`
	ChatListItem     string `yaml:"chat_list_item"`
	ChatContainer    string `yaml:"chat_container"`
	ChatWindow       string `yaml:"chat_window"`
	MessageBlock     string `yaml:"message_block"`
	MessageContent   string `yaml:"message_content"`
	// MessageAttr carries the "[<datetime>] <sender>:" annotation.
	MessageAttr string `yaml:"message_attr"`
	MessageText string `yaml:"message_text"`
	MessageBox  string `yaml:"message_box"`
	Profile     string `yaml:"profile"`
	Username    string `yaml:"username"`
}

func defaultWhatsAppSelectors() WhatsAppSelectors {
	return WhatsAppSelectors{
		StaticElement:   "#wa-popovers-bucket",
		QRCode:          "._akau",
		QRCodeAttr:      "data-ref",
		SearchBox:       ".x1hx0egp.x6ikm8r.x1odjw0f.x6prxxf.x1k6rcq7.x1whj5v",
		SearchBoxCancel: "._ah_y",
		ChatList:        ".x1n2onr6._ak9y",
		ChatListItem:    "._ak8q",
		ChatContainer:   "._ajyl",
		ChatWindow:      ".x3psx0u.xwib8y2.xkhd6sd.xrmvbpv",
		MessageBlock:    ".x9f619.x1hx0egp.x1yrsyyn",
		MessageContent:  "copyable-text",
		MessageAttr:     "data-pre-plain-text",
		MessageText:     "_akbu",
		MessageBox:      "._ak1l",
		Profile:         ".x1n2onr6.x14yjl9h.xudhj91.x18nykt9.xww2gxu",
		Username:        "._alcd",
	}
}

// InstagramSelectors are the DOM hooks for the Instagram web client.
// Entries with spaces in the class list are expressed as XPath because the
// compound classes contain characters CSS cannot address directly.
type InstagramSelectors struct {
	LoginForm            string `yaml:"login_form"`
	LoginFields          string `yaml:"login_fields"`
	LoginButton          string `yaml:"login_button"`
	DeclineCookies       string `yaml:"decline_cookies"`
	DeclineNotifications string `yaml:"decline_notifications"`
	Contacts             string `yaml:"contacts"`
	Name                 string `yaml:"name"`
	InputBox             string `yaml:"input_box"`
	ChatWindow           string `yaml:"chat_window"`
	MessageBlobXPath     string `yaml:"message_blob_xpath"`
	TimeXPath            string `yaml:"time_xpath"`
	SenderXPath          string `yaml:"sender_xpath"`
}

func defaultInstagramSelectors() InstagramSelectors {
	return InstagramSelectors{
		LoginForm:            "loginForm",
		LoginFields:          "._aa4b._add6._ac4d._ap35",
		LoginButton:          "._acan._acap._acas._aj1-._ap30",
		DeclineCookies:       "._a9--._ap36._a9_1",
		DeclineNotifications: "._a9--._ap36._a9_1",
		Contacts:             ".x9f619.x1n2onr6.x1ja2u2z.x1qjc9v5.x78zum5.xdt5ytf.x1iyjqo2.xl56j7k.xeuugli.xxsgkw5",
		Name:                 ".x6s0dn4.x1bs97v6.x1q0q8m5.xso031l.x9f619.x78zum5.x1q0g3np.xr931m4.xat24cr.x4lt0of.x1swvt13.x1pi30zi.xh8yej3",
		InputBox:             ".xzsf02u.x1a2a7pz.x1n2onr6.x14wi4xw.x1iyjqo2.x1gh3ibb.xisnujt.xeuugli.x1odjw0f.notranslate",
		ChatWindow:           ".x78zum5.xdt5ytf.x1iyjqo2.xs83m0k.x1xzczws.x6ikm8r.x1rife3k.x1n2onr6.xh8yej3.x16o0dkt",
		MessageBlobXPath:     `.//*[@class="x78zum5 xdt5ytf"]`,
		TimeXPath:            `.//*[@class="x193iq5w xeuugli x13faqbe x1vvkbs x1xmvt09 x1lliihq x1s928wv xhkezso x1gmr53x x1cpjm7i x1fgarty x1943h6x x4zkp8e x676frb x1pg5gke xvq8zen xo1l8bm x12scifz"]`,
		SenderXPath:          `.//*[@class="html-span xdj266r x11i5rnm xat24cr x1mh8g0r xexx8yu x4uap5 x18d9i69 xkhd6sd x1hl2dhg x16tdsg8 x1vvkbs xzpqnlu x1hyvwdk xjm9jq1 x6ikm8r x10wlt62 x10l6tqk x1i1rx1s"]`,
	}
}
