package domain

// Member roles. Applier is a guest who asked to become a cast.
const (
	RoleAdmin   = -1
	RoleCast    = 0
	RoleGuest   = 1
	RoleApplier = 10
)

const (
	SocialEmail = 0
	SocialLine  = 1
	SocialPhone = 2
)

// Usernames of the superuser members that send operator messages.
const (
	SuperSystem = "system"
	SuperAdmin  = "admin"
)

const (
	RoomTypeOrder  = ""
	RoomTypeSystem = SuperSystem
	RoomTypeAdmin  = SuperAdmin
)

const (
	InvoiceCall     = "CALL"
	InvoiceGift     = "GIFT"
	InvoiceBuy      = "BUY"
	InvoiceAdmin    = "ADMIN"
	InvoiceAuto     = "AUTO"
	InvoiceTransfer = "TRANSFER"
)

// Join status and how a confirmed join was selected.
const (
	JoinApplied   = 0
	JoinConfirmed = 1

	SelectionAuto  = 0
	SelectionGuest = 1
	SelectionAdmin = 2
)

const (
	NoticeFoot   = "foot"
	NoticeLike   = "like"
	NoticeFollow = "follow"
)

const (
	TransferPending  = 0
	TransferApproved = 1
	TransferRejected = 2
)

// Realtime envelope types delivered over the per-member channel.
const (
	EventRoom       = "ROOM"
	EventCall       = "CALL"
	EventCallType   = "CALLTYPE"
	EventPresent    = "PRESENT"
	EventApplier    = "APPLIER"
	EventRoomEvents = "ROOMEVENTS"
	EventUser       = "USER"
	EventMessage    = "MESSAGE"
)

// CALL event names.
const (
	CallCreate = "create"
	CallDelete = "delete"
	CallMine   = "mine"
	CallUpdate = "update"
)

const (
	MinStars = 1
	MaxStars = 5
)

const DefaultPageSize = 10
