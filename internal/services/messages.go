package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/tashaleeh/api/internal/domain"
)

// Callback tokens carried by inline buttons. The inbound router decodes them
// back into commands.
const (
	CallbackNewRequest  = "new_request"
	CallbackMyRequests  = "my_requests"
	CallbackAcceptOffer = "accept_offer"
	CallbackRejectOffer = "reject_offer"
	CallbackViewOrder   = "view_order"
	CallbackFinishItems = "finish_items"
	CallbackConfirm     = "confirm_request"
)

// FormatPrice renders a halala amount as riyals, dropping trailing zeros.
func FormatPrice(halalas int64) string {
	if halalas%100 == 0 {
		return fmt.Sprintf("%d ريال", halalas/100)
	}
	return fmt.Sprintf("%d.%02d ريال", halalas/100, halalas%100)
}

func formatDeadline(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

func formatItems(items []domain.LineItem) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Name)
		if item.Note != "" {
			fmt.Fprintf(&b, " (%s)", item.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BroadcastMessage is the new-order announcement sent to every supplier
// recipient in the order's region.
func BroadcastMessage(order domain.Order, vehicle string) OutboundMessage {
	text := fmt.Sprintf(`🆕 طلب جديد في منطقتك!

🆔 رقم الطلب: %s
🚗 السيارة: %s

📦 القطع المطلوبة:
%s
⏰ ينتهي في: %s

💡 يرجى إرسال عرضك موضحًا سعر كل قطعة ومدة التوريد.`,
		order.Code, vehicle, formatItems(order.Items), formatDeadline(order.ExpiresAt))
	return OutboundMessage{Text: text}
}

// ConfirmMessage acknowledges the buyer's committed order.
func ConfirmMessage(order domain.Order, vehicle string) OutboundMessage {
	text := fmt.Sprintf(`✅ تم إنشاء طلبك بنجاح!

🆔 رقم الطلب: %s
🚗 السيارة: %s

📦 القطع المطلوبة:
%s
⏰ ينتهي الطلب في: %s

📤 تم إرسال طلبك إلى التشاليح المسجّلة في منطقتك.
ستصلك العروض قريباً!`,
		order.Code, vehicle, formatItems(order.Items), formatDeadline(order.ExpiresAt))
	return OutboundMessage{
		Text: text,
		Keyboard: [][]Button{
			{{Text: "🆕 طلب جديد آخر", Data: CallbackNewRequest}},
			{{Text: "📋 مراجعة طلباتي", Data: CallbackMyRequests}},
		},
	}
}

// NewOfferMessage tells the buyer a priced offer arrived.
func NewOfferMessage(order domain.Order, offer domain.Offer) OutboundMessage {
	text := fmt.Sprintf(`🆕 عرض جديد وصل لطلبك!

🆔 رقم الطلب: %s
💰 السعر: %s

اتخذ قرارك:`,
		order.Code, FormatPrice(offer.Price))
	return OutboundMessage{
		Text: text,
		Keyboard: [][]Button{
			{
				{Text: "✅ قبول", Data: CallbackAcceptOffer + "_" + offer.ID},
				{Text: "❌ رفض", Data: CallbackRejectOffer + "_" + offer.ID},
			},
			{{Text: "📋 جميع طلباتي", Data: CallbackMyRequests}},
		},
	}
}

// AcceptedMessage congratulates the winning supplier.
func AcceptedMessage(order domain.Order, offer domain.Offer) OutboundMessage {
	text := fmt.Sprintf(`🎉 تهانينا! تم قبول عرضك!

🆔 رقم الطلب: %s
💰 السعر المتفق عليه: %s

📱 يرجى التواصل مع العميل لترتيب التسليم.`,
		order.Code, FormatPrice(offer.Price))
	return OutboundMessage{Text: text}
}

// LockedMessage tells a superseded supplier their offer was closed out.
func LockedMessage(order domain.Order) OutboundMessage {
	text := fmt.Sprintf(`🔒 تم قبول عرض آخر للطلب %s.

تم قفل عرضك لهذا الطلب. حظاً أوفر في الطلبات القادمة!`, order.Code)
	return OutboundMessage{Text: text}
}

// RejectedMessage tells a supplier the buyer declined their offer.
func RejectedMessage(order domain.Order) OutboundMessage {
	text := fmt.Sprintf(`❌ عذراً، تم رفض عرضك للطلب %s.

يمكنك متابعة الطلبات الجديدة في منطقتك.`, order.Code)
	return OutboundMessage{Text: text}
}

// ExpiredMessage tells the buyer their order lapsed without an accepted offer.
func ExpiredMessage(order domain.Order) OutboundMessage {
	text := fmt.Sprintf(`⏰ انتهت صلاحية طلبك %s.

يمكنك إنشاء طلب جديد في أي وقت.`, order.Code)
	return OutboundMessage{
		Text: text,
		Keyboard: [][]Button{
			{{Text: "🆕 طلب جديد", Data: CallbackNewRequest}},
		},
	}
}
