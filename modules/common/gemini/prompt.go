package gemini

import "fmt"

// decodeInstruction - prompt for rebuilding an image as a replica prompt plus consistent variations
func decodeInstruction(count int) string {
	return fmt.Sprintf(`You are an expert Visual Analyst and Director of Photography.

GOAL: write prompts that recreate this photo (Replica) and consistent Variations of it.
Every prompt must stay ABSOLUTELY FAITHFUL to the original image.

1. CORE ANALYSIS (keep 100%%):
- Context & background: describe the surrounding space in detail (cafe, street, bedroom...),
  wall colours, bokeh lights, concrete decor objects. The background of every prompt must
  match the original so all shots feel like the same location.
- Identity & wardrobe: keep face, hairstyle, makeup, clothing, accessories and fabric.
- Lighting: keep light direction, colour temperature and contrast.

2. EXPRESSION & MOOD:
- Read the eyes and facial muscles. Is the subject happy, sad, seductive, thoughtful?
- Every variation must describe exactly this emotional state. Use micro-expression
  keywords such as smizing, pouting, melancholic gaze, soft smile, intense eye contact.

3. VARIATIONS STRATEGY:
Produce alternative shots of the same moment, not random changes.
- Prompt #1 (The Replica): recreate the original exactly (angle, pose, crop).
- Prompt #2 to #%d (The Consistent Variations): keep context, subject and mood.
  Slightly change the camera angle (high, low, dutch), the focal length and distance
  (close-up to medium shot or back), and the pose. New poses must be natural and fit the setting.

OUTPUT JSON:
- "prompts": array of %d objects.
  * "text": English prompt in Midjourney/Flux style using professional photographic vocabulary (photorealistic).
  * "score": level of detail rating (1-10).
- "detectedTexts": text strings visible in the image, if any.
- "suggestions": 3-5 tips to take a better photo (lighting, posing).

Return plain JSON only, no Markdown.`, count, count)
}

// optimizeInstruction - prompt for upgrading a prompt to a 10/10 version
func optimizeInstruction(original string) string {
	return fmt.Sprintf(`You are a prompt engineering expert (Midjourney v6/Flux).
Task: upgrade the following prompt to a 10/10 score (Photorealistic/High Art).

Original prompt: %q

Requirements:
1. Keep the meaning, any text content, the colours and the original composition.
2. Add quality keywords: "8k resolution, hyper-detailed, photorealistic, masterpiece, cinematic lighting, ray tracing".
3. Clarify material textures and optics (camera lens, depth of field).

Output JSON: { "text": "...", "score": 10 }`, original)
}

// translateInstruction - plain translation prompt
func translateInstruction(text, targetLang string) string {
	return fmt.Sprintf(`Translate the following text to %s. Keep it concise and accurate. Do not add any explanations.

Text: %q`, languageName(targetLang), text)
}

func languageName(lang string) string {
	if lang == "vi" {
		return "Vietnamese"
	}
	return "English"
}
