package relay

import "fmt"

// noticeText names the sender above the copied content so moderators know
// who they are replying to.
func noticeText(name string, id int64) string {
	return fmt.Sprintf(
		"📩 سؤال جديد من طالب\n\n👤 الاسم: %s\n🆔 ID: %d\n\n↩️ للرد: اعمل Reply على هذه الرسالة",
		name, id)
}

// replyText prefixes moderator replies with a fixed marker.
func replyText(text string) string {
	return "📩 رد المشرفين:\n\n" + text
}
