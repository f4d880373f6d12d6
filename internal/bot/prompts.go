package bot

import (
	"fmt"
	"strings"

	domain "github.com/tashaleeh/api/internal/domain"
	"github.com/tashaleeh/api/internal/services"
)

// User-facing notices for routing outcomes.
const (
	textInternalError       = "⚠️ حدث خطأ غير متوقع. حاول مرة أخرى لاحقاً."
	textUnknownAction       = "⚠️ هذا الإجراء غير متاح."
	textBanned              = "🚫 حسابك موقوف. تواصل مع الدعم."
	textNoActiveDraft       = "ℹ️ لا يوجد طلب قيد الإنشاء. اضغط \"طلب جديد\" للبدء."
	textInvalidSelection    = "⚠️ اختيار غير صالح. استخدم الأزرار المعروضة."
	textDraftLimit          = "⚠️ وصلت الحد الأقصى للطلبات غير المكتملة. احذف أحدها أو أكمله أولاً."
	textDraftDeleted        = "🗑 تم حذف المسودة."
	textMediaAttached       = "📎 تم إرفاق الصورة بطلبك."
	textOrderNotFound       = "⚠️ لم يتم العثور على الطلب. تأكد من رقم الطلب."
	textOrderClosed         = "⚠️ هذا الطلب لم يعد متاحاً."
	textOfferAlreadyDecided = "⚠️ تم البت في هذا الطلب مسبقاً."
	textOfferRejected       = "تم رفض العرض. ستصلك العروض الأخرى هنا."
	textNotASupplier        = "⚠️ هذه الخدمة متاحة للتشاليح المسجّلة فقط."
	textDuplicateOffer      = "⚠️ سبق أن قدمت عرضاً على هذا الطلب."
)

func welcomeMessage(actor domain.Actor) services.OutboundMessage {
	name := actor.FirstName
	if name == "" {
		name = actor.Username
	}
	greeting := "مرحباً"
	if name != "" {
		greeting = "مرحباً " + name
	}
	return services.OutboundMessage{
		Text: greeting + `! 👋

أرسل طلب قطع غيار وسيصلك عروض الأسعار من التشاليح في منطقتك.`,
		Keyboard: [][]services.Button{
			{{Text: "🆕 طلب جديد", Data: services.CallbackNewRequest}},
			{{Text: "📋 طلباتي", Data: services.CallbackMyRequests}},
		},
	}
}

func regionPrompt(regions []domain.Region) services.OutboundMessage {
	keyboard := make([][]services.Button, 0, len(regions))
	for _, region := range regions {
		keyboard = append(keyboard, []services.Button{
			{Text: region.Name, Data: "select_region_" + region.ID},
		})
	}
	return services.OutboundMessage{Text: "📍 اختر منطقتك:", Keyboard: keyboard}
}

func makePrompt(makes []domain.Make) services.OutboundMessage {
	keyboard := buttonGrid(len(makes), 2, func(i int) services.Button {
		return services.Button{Text: makes[i].Name, Data: "select_make_" + makes[i].ID}
	})
	return services.OutboundMessage{Text: "🚗 اختر الشركة المصنّعة:", Keyboard: keyboard}
}

func modelPrompt(models []domain.CarModel) services.OutboundMessage {
	keyboard := buttonGrid(len(models), 2, func(i int) services.Button {
		return services.Button{Text: models[i].Name, Data: "select_model_" + models[i].ID}
	})
	return services.OutboundMessage{Text: "🚙 اختر الموديل:", Keyboard: keyboard}
}

// yearDecades bounds the guided year picker. Older vehicles are rare enough
// at the yards that the form does not offer them.
var yearDecades = [][2]int{
	{1990, 1999},
	{2000, 2009},
	{2010, 2019},
	{2020, 2029},
}

func yearRangePrompt() services.OutboundMessage {
	keyboard := make([][]services.Button, 0, len(yearDecades))
	for _, decade := range yearDecades {
		keyboard = append(keyboard, []services.Button{{
			Text: fmt.Sprintf("%d - %d", decade[0], decade[1]),
			Data: fmt.Sprintf("select_years_%d_%d", decade[0], decade[1]),
		}})
	}
	return services.OutboundMessage{Text: "📅 اختر الفترة:", Keyboard: keyboard}
}

func yearPrompt(from, to int) services.OutboundMessage {
	count := to - from + 1
	if count < 1 {
		count = 0
	}
	keyboard := buttonGrid(count, 5, func(i int) services.Button {
		year := from + i
		return services.Button{
			Text: fmt.Sprintf("%d", year),
			Data: fmt.Sprintf("select_year_%d", year),
		}
	})
	return services.OutboundMessage{Text: "📅 اختر سنة الصنع:", Keyboard: keyboard}
}

func itemsPrompt() services.OutboundMessage {
	return services.OutboundMessage{
		Text: `📦 أرسل اسم القطعة المطلوبة (قطعة في كل رسالة).
يمكنك إضافة ملاحظة بعد شرطة، مثال: دعامية أمامية - يمين
ويمكنك إرفاق صورة للقطعة.

عند الانتهاء اضغط الزر أدناه.`,
		Keyboard: [][]services.Button{
			{{Text: "✅ انتهيت من إضافة القطع", Data: services.CallbackFinishItems}},
		},
	}
}

func itemAddedMessage(draft services.Draft) services.OutboundMessage {
	return services.OutboundMessage{
		Text: fmt.Sprintf("✔️ تمت إضافة القطعة (%d حتى الآن). أرسل قطعة أخرى أو اضغط إنهاء.", len(draft.Items)),
		Keyboard: [][]services.Button{
			{{Text: "✅ انتهيت من إضافة القطع", Data: services.CallbackFinishItems}},
		},
	}
}

func reviewPrompt(draft services.Draft, vehicle string) services.OutboundMessage {
	var b strings.Builder
	b.WriteString("📋 مراجعة الطلب:\n\n")
	if vehicle != "" {
		fmt.Fprintf(&b, "🚗 السيارة: %s\n\n", vehicle)
	}
	b.WriteString("📦 القطع المطلوبة:\n")
	for i, item := range draft.Items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Name)
		if item.Note != "" {
			fmt.Fprintf(&b, " (%s)", item.Note)
		}
		b.WriteString("\n")
	}
	if n := len(draft.MediaRefs); n > 0 {
		fmt.Fprintf(&b, "\n📎 %d مرفق\n", n)
	}
	b.WriteString("\nهل تريد تأكيد الطلب وإرساله إلى التشاليح؟")
	return services.OutboundMessage{
		Text: b.String(),
		Keyboard: [][]services.Button{
			{{Text: "✅ تأكيد الطلب", Data: services.CallbackConfirm}},
			{{Text: "🗑 حذف المسودة", Data: "delete_draft_" + draft.ID}},
		},
	}
}

func draftLimitMessage(drafts []services.Draft) services.OutboundMessage {
	keyboard := make([][]services.Button, 0, len(drafts))
	for i, draft := range drafts {
		keyboard = append(keyboard, []services.Button{
			{Text: fmt.Sprintf("↩️ متابعة مسودة %d", i+1), Data: "switch_draft_" + draft.ID},
			{Text: "🗑 حذف", Data: "delete_draft_" + draft.ID},
		})
	}
	return services.OutboundMessage{Text: textDraftLimit, Keyboard: keyboard}
}

func ordersListMessage(orders []domain.Order) services.OutboundMessage {
	if len(orders) == 0 {
		return services.OutboundMessage{
			Text: "ℹ️ لا توجد طلبات بعد.",
			Keyboard: [][]services.Button{
				{{Text: "🆕 طلب جديد", Data: services.CallbackNewRequest}},
			},
		}
	}
	var b strings.Builder
	b.WriteString("📋 طلباتك:\n\n")
	keyboard := make([][]services.Button, 0, len(orders))
	for _, order := range orders {
		fmt.Fprintf(&b, "%s %s — %s\n", statusBadge(order.Status), order.Code, statusLabel(order.Status))
		keyboard = append(keyboard, []services.Button{
			{Text: "🔍 " + order.Code, Data: "view_order_" + order.ID},
		})
	}
	return services.OutboundMessage{Text: b.String(), Keyboard: keyboard}
}

func orderDetailsMessage(order domain.Order, offers []domain.Offer) services.OutboundMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "🆔 الطلب %s\n📊 الحالة: %s\n\n📦 القطع:\n", order.Code, statusLabel(order.Status))
	for i, item := range order.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Name)
	}
	var keyboard [][]services.Button
	pending := 0
	for _, offer := range offers {
		if offer.Status != domain.OfferStatusPending {
			continue
		}
		pending++
		fmt.Fprintf(&b, "\n💰 عرض بسعر %s", services.FormatPrice(offer.Price))
		if offer.Notes != "" {
			fmt.Fprintf(&b, " — %s", offer.Notes)
		}
		keyboard = append(keyboard, []services.Button{
			{Text: "✅ قبول " + services.FormatPrice(offer.Price), Data: "accept_offer_" + offer.ID},
			{Text: "❌ رفض", Data: "reject_offer_" + offer.ID},
		})
	}
	if pending == 0 {
		b.WriteString("\nℹ️ لا توجد عروض معلّقة حالياً.")
	}
	return services.OutboundMessage{Text: b.String(), Keyboard: keyboard}
}

func acceptConfirmedMessage(result services.DecideOfferResult) services.OutboundMessage {
	return services.OutboundMessage{
		Text: fmt.Sprintf(`✅ تم قبول العرض بسعر %s للطلب %s.

📱 سيتواصل معك التشليح لترتيب التسليم.

⭐ كيف تقيّم تعاملك مع التشليح؟`,
			services.FormatPrice(result.Offer.Price), result.Order.Code),
		Keyboard: ratingKeyboard(result.Offer.ID),
	}
}

// ratingKeyboard renders the five score buttons for the accepted offer.
func ratingKeyboard(offerID string) [][]services.Button {
	row := make([]services.Button, 0, 5)
	for score := 1; score <= 5; score++ {
		row = append(row, services.Button{
			Text: strings.Repeat("⭐", score),
			Data: fmt.Sprintf("rate_supplier_%s_%d", offerID, score),
		})
	}
	return [][]services.Button{row}
}

func ratingThanksMessage(supplier domain.Supplier) services.OutboundMessage {
	return services.OutboundMessage{
		Text: fmt.Sprintf(`🙏 شكراً لتقييمك!

تقييم التشليح الحالي: %.1f من 5 (%d تقييم).`,
			supplier.AverageRating, supplier.TotalRatings),
	}
}

func quoteSubmittedMessage(order domain.Order, offer domain.Offer) services.OutboundMessage {
	return services.OutboundMessage{
		Text: fmt.Sprintf(`📤 تم إرسال عرضك للطلب %s بسعر %s.

سيصلك إشعار عند قرار العميل.`, order.Code, services.FormatPrice(offer.Price)),
	}
}

func statusBadge(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusAccepted:
		return "✅"
	case domain.OrderStatusExpired:
		return "⏰"
	case domain.OrderStatusCancelled:
		return "🚫"
	default:
		return "🟢"
	}
}

func statusLabel(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusNew:
		return "بانتظار العروض"
	case domain.OrderStatusActive:
		return "وصلت عروض"
	case domain.OrderStatusAccepted:
		return "تم قبول عرض"
	case domain.OrderStatusExpired:
		return "منتهي"
	case domain.OrderStatusCancelled:
		return "ملغي"
	default:
		return string(status)
	}
}

// buttonGrid lays n buttons out in rows of the given width.
func buttonGrid(n, width int, button func(i int) services.Button) [][]services.Button {
	if n <= 0 {
		return nil
	}
	grid := make([][]services.Button, 0, (n+width-1)/width)
	for i := 0; i < n; i += width {
		end := i + width
		if end > n {
			end = n
		}
		row := make([]services.Button, 0, end-i)
		for j := i; j < end; j++ {
			row = append(row, button(j))
		}
		grid = append(grid, row)
	}
	return grid
}
