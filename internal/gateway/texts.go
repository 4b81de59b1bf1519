package gateway

import "fmt"

// User-facing texts are Arabic; the audience is Arabic-speaking students.
const (
	textWelcome = "أهلاً بك في بوت الدروس 🎓\n" +
		"اضغط على الزر أدناه لتصفح الدروس حسب السنة والتخصص،\n" +
		"أو أرسل سؤالك مباشرة هنا وسيصل إلى المشرفين."

	labelBrowse = "📚 الدروس"

	textAckSent      = "✅ تم إرسال سؤالك إلى المشرفين."
	textSendFailed   = "⚠️ تعذر إرسال رسالتك حالياً، حاول مرة أخرى لاحقاً."
	textItemFailed   = "⚠️ تعذر جلب هذا الدرس حالياً، حاول مرة أخرى لاحقاً."
	textAnnounceUse  = "الاستعمال: ‎/announce نص الإعلان، أو رد بـ ‎/announce على الرسالة المراد نشرها."
	textNotModerator = "هذا الأمر متاح للمشرفين فقط."
)

func announceSummary(delivered, failed, pruned int) string {
	return fmt.Sprintf("📣 تم النشر: وصل إلى %d، فشل %d، حُذف من السجل %d.", delivered, failed, pruned)
}
