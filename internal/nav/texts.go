package nav

// User-facing strings for menu screens (Arabic, matching the bot's audience).
const (
	textPickYear           = "📘 اختر السنة:"
	textPickSpecialization = "📙 اختر التخصص:"
	textPickSemester       = "📗 اختر السداسي:"
	textPickSubject        = "📚 اختر المادة:"
	textPickItem           = "📖 %s\nاختر الدرس:"
	textEmptySection       = "⚠️ لا توجد دروس مضافة بعد لمادة: %s"
	textStaleScreen        = "⚠️ هذه القائمة لم تعد صالحة، يرجى فتح القسم من جديد."

	labelBack = "🔙 رجوع"
	labelHome = "🏠 الرئيسية"
)
